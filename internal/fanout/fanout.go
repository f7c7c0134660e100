// Package fanout dispatches one question to every configured jury model
// concurrently and collects their answers, isolating each model's
// failures from the others.
package fanout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/router"
)

// systemPrompt is sent as the system message to every model in the
// fan-out. Its exact wording is part of Compass's observable behavioral
// contract and must not be paraphrased.
const systemPrompt = `You are participating in a jury of independent AI models each answering
the same question. Answer concisely and directly. State your reasoning
briefly. If you are uncertain, say so explicitly. Your answer will be
compared against the answers of other models for agreement, so answer
based on your own best judgment rather than guessing what others might
say. Respond in English only.`

const (
	temperature = 0.3
	maxTokens   = 2048
)

// RouterClient is the subset of router.Client used by the fan-out,
// narrowed to an interface so tests can substitute a fake.
type RouterClient interface {
	ChatCompletion(ctx context.Context, req router.ChatRequest) (*router.ChatResult, error)
}

// UnauthorizedObserver is notified when a model call comes back 401, so
// the caller can corroborate it against the configured token's expiry.
type UnauthorizedObserver interface {
	ObserveUnauthorized(model string)
}

// Recorder records one dispatch outcome per model for operator metrics.
type Recorder interface {
	RecordDispatch(model string, success bool, latencyMS int64)
}

// Dispatcher issues concurrent model calls through a RouterClient.
type Dispatcher struct {
	client   RouterClient
	observer UnauthorizedObserver
	recorder Recorder
}

// New builds a Dispatcher. observer and recorder may be nil.
func New(client RouterClient, observer UnauthorizedObserver, recorder Recorder) *Dispatcher {
	return &Dispatcher{client: client, observer: observer, recorder: recorder}
}

// Dispatch asks every model in models the same question and returns one
// consensus.ModelResponse per model, in the same order as models. All
// calls run concurrently; a failure in one never affects the others or
// shortens the others' time budget.
func (d *Dispatcher) Dispatch(ctx context.Context, question, callerContext string, models []string) []consensus.ModelResponse {
	userMessage := question
	if callerContext != "" {
		userMessage = fmt.Sprintf("Context: %s\n\nQuestion: %s", callerContext, question)
	}

	responses := make([]consensus.ModelResponse, len(models))

	var g errgroup.Group
	for i, model := range models {
		i, model := i, model
		g.Go(func() error {
			responses[i] = d.call(ctx, model, userMessage)
			return nil
		})
	}
	// The per-call goroutines above never return a non-nil error (every
	// failure is captured into responses[i] instead), so Wait cannot
	// fail and there is nothing to isolate against — each goroutine's
	// own error is already contained to its own response slot.
	_ = g.Wait()

	return responses
}

func (d *Dispatcher) call(ctx context.Context, model, userMessage string) consensus.ModelResponse {
	start := time.Now()

	result, err := d.client.ChatCompletion(ctx, router.ChatRequest{
		Model: model,
		Messages: []router.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	})
	latency := time.Since(start)

	if err != nil {
		if rerr, ok := err.(*router.Error); ok && rerr.Kind == router.KindAuth && d.observer != nil {
			d.observer.ObserveUnauthorized(model)
		}
		d.record(model, false, latency)
		return consensus.ModelResponse{
			Model:     model,
			Success:   false,
			Error:     err.Error(),
			LatencyMS: latency.Milliseconds(),
		}
	}

	d.record(model, true, latency)
	return consensus.ModelResponse{
		Model:     model,
		Answer:    result.Content,
		Success:   true,
		LatencyMS: latency.Milliseconds(),
	}
}

func (d *Dispatcher) record(model string, success bool, latency time.Duration) {
	if d.recorder != nil {
		d.recorder.RecordDispatch(model, success, latency.Milliseconds())
	}
}
