// Package orchestrator sequences a single jury query through guardrails,
// memory, fan-out, aggregation, and reflection.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/guardrail"
	"github.com/ashita-ai/compass/internal/memory"
	"github.com/ashita-ai/compass/internal/reflection"
)

// Dispatcher is the subset of fanout.Dispatcher the orchestrator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, question, callerContext string, models []string) []consensus.ModelResponse
}

// Reflector is the subset of reflection.reflector the orchestrator needs.
type Reflector interface {
	Run(ctx context.Context, question string, result consensus.Result) reflection.Result
}

// MemoryStore is the subset of memory.Store the orchestrator needs.
type MemoryStore interface {
	SessionContext(ctx context.Context, sessionID string) (string, bool, error)
	RecordOutcome(ctx context.Context, sessionID string, entry memory.Entry) error
}

// MetricsRecorder is notified of the overall outcome of one jury query.
type MetricsRecorder interface {
	RecordQuery(success bool, latency time.Duration, verdict consensus.Verdict)
}

// Hook is notified, in its own goroutine, every time a jury query
// completes successfully. Registered via AddHook; never blocks the
// request that produced the result.
type Hook interface {
	OnCompleted(ctx context.Context, req Request, result consensus.Result) error
}

// noopMetrics discards query metrics. Used when no recorder is configured.
type noopMetrics struct{}

func (noopMetrics) RecordQuery(bool, time.Duration, consensus.Verdict) {}

// Defaults holds the configured fallback feature flags and model set,
// applied when a Request leaves the corresponding field unset.
type Defaults struct {
	Models           []string
	EnableReflection bool
	EnableMemory     bool
	EnableGuardrails bool
}

// Orchestrator wires together the jury pipeline's collaborators.
type Orchestrator struct {
	dispatcher Dispatcher
	memory     MemoryStore
	reflector  Reflector
	metrics    MetricsRecorder
	logger     *slog.Logger
	defaults   Defaults
	hooks      []Hook
}

// AddHook registers a Hook to be notified after every successful query.
// Not safe to call concurrently with ExecuteJuryQuery; call during
// startup before the orchestrator serves traffic.
func (o *Orchestrator) AddHook(h Hook) {
	o.hooks = append(o.hooks, h)
}

// New builds an Orchestrator. memory, reflector, and metrics may be nil —
// a nil memory or reflector disables that stage regardless of request
// flags, and a nil metrics recorder discards the overall query metric.
func New(dispatcher Dispatcher, mem MemoryStore, reflector Reflector, metrics MetricsRecorder, logger *slog.Logger, defaults Defaults) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		memory:     mem,
		reflector:  reflector,
		metrics:    metrics,
		logger:     logger,
		defaults:   defaults,
	}
}

// Request carries one jury query. Pointer fields override the configured
// default for that feature when non-nil.
type Request struct {
	Question         string
	Context          string
	Models           []string
	SessionID        string
	EnableReflection *bool
	EnableMemory     *bool
	EnableGuardrails *bool
}

func resolve(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}

// ExecuteJuryQuery runs the full pipeline for one question: guardrails,
// memory context injection, fan-out, aggregation, reflection, and
// outcome recording, in that order.
func (o *Orchestrator) ExecuteJuryQuery(ctx context.Context, req Request) (consensus.Result, error) {
	guardrailsOn := resolve(req.EnableGuardrails, o.defaults.EnableGuardrails)
	memoryOn := resolve(req.EnableMemory, o.defaults.EnableMemory) && o.memory != nil
	reflectionOn := resolve(req.EnableReflection, o.defaults.EnableReflection) && o.reflector != nil

	if guardrailsOn {
		if _, err := guardrail.ValidateInput(req.Question); err != nil {
			return consensus.Result{}, err
		}
	}

	models := req.Models
	if len(models) == 0 {
		models = o.defaults.Models
	}

	callerContext := req.Context
	memoryContextUsed := false
	if memoryOn && req.SessionID != "" {
		sessionCtx, ok, err := o.memory.SessionContext(ctx, req.SessionID)
		if err != nil {
			o.logger.Warn("orchestrator: session context lookup failed, continuing without it", "error", err, "session_id", req.SessionID)
		} else if ok {
			if callerContext != "" {
				callerContext = sessionCtx + "\n\n" + callerContext
			} else {
				callerContext = sessionCtx
			}
			memoryContextUsed = true
		}
	}

	responses := o.dispatcher.Dispatch(ctx, req.Question, callerContext, models)
	result := consensus.Aggregate(responses)
	result.GuardrailsApplied = guardrailsOn
	result.SessionID = req.SessionID
	result.MemoryUsed = memoryContextUsed

	if reflectionOn && result.Representative != nil && result.Verdict != consensus.VerdictNoConsensus {
		reflResult := o.reflector.Run(ctx, req.Question, result)
		reflection.Apply(&result, reflResult)
	}

	if memoryOn && req.SessionID != "" && result.Representative != nil {
		err := o.memory.RecordOutcome(ctx, req.SessionID, memory.Entry{
			Question: req.Question,
			Answer:   result.Representative.Answer,
			Verdict:  string(result.Verdict),
			Score:    result.Score,
		})
		if err != nil {
			o.logger.Warn("orchestrator: recording outcome to memory failed", "error", err, "session_id", req.SessionID)
		}
	}

	success := result.Verdict != consensus.VerdictNoConsensus
	var maxLatency time.Duration
	for _, r := range responses {
		if r.Success {
			success = true
		}
		latency := time.Duration(r.LatencyMS) * time.Millisecond
		if latency > maxLatency {
			maxLatency = latency
		}
	}
	o.metrics.RecordQuery(success, maxLatency, result.Verdict)

	if len(o.hooks) > 0 {
		hooks := o.hooks
		logger := o.logger
		go func() {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, h := range hooks {
				if err := h.OnCompleted(hookCtx, req, result); err != nil {
					logger.Warn("orchestrator: query hook failed", "error", err)
				}
			}
		}()
	}

	return result, nil
}
