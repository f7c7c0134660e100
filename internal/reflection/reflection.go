// Package reflection runs a critic pass over the jury's representative
// answer and, when the critic is confident enough, proposes a refined
// replacement.
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/router"
)

// QualityThreshold is the minimum critic score for the refined answer to
// replace the representative.
const QualityThreshold = 70

const (
	temperature = 0.2
	maxTokens   = 2048
	answerCap   = 1000
)

const criticSystemPrompt = `You are a critical reviewer evaluating a consensus answer produced by a
jury of AI models. You must respond with JSON only, no prose, no
markdown fences beyond what is required to contain the JSON object.

Question: %s

Representative answer under review:
%s

Individual model answers for context:
%s

Evaluate the representative answer for correctness, completeness, and
clarity. Respond with a single JSON object of the form:
{"qualityScore": <0-100>, "issues": ["..."], "refinedAnswer": "..."}

If the representative answer is already excellent, refinedAnswer may
repeat it unchanged. Respond in English only.`

// Result is the critic's verdict on a representative answer.
type Result struct {
	QualityScore  int
	Issues        []string
	RefinedAnswer string
}

// RouterClient is the subset of router.Client the reflection pass needs.
type RouterClient interface {
	ChatCompletion(ctx context.Context, req router.ChatRequest) (*router.ChatResult, error)
}

// reflector runs the critic call against a configured model.
type reflector struct {
	client RouterClient
	model  string
	logger *slog.Logger
}

// New builds a Reflector that calls model through client.
func New(client RouterClient, model string, logger *slog.Logger) *reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &reflector{client: client, model: model, logger: logger}
}

// Run evaluates the representative answer in result. It is only
// meaningful to call when result.Representative != nil and
// result.Verdict != consensus.VerdictNoConsensus; the caller enforces
// that precondition.
func (r *reflector) Run(ctx context.Context, question string, result consensus.Result) Result {
	if result.Dissenter != nil {
		r.logger.Debug("reflection: consensus had a dissenter; critic sees it only as one of the per-model answers", "dissenting_model", result.Dissenter.Model)
	}

	prompt := buildPrompt(question, result)

	chatResult, err := r.client.ChatCompletion(ctx, router.ChatRequest{
		Model: r.model,
		Messages: []router.Message{
			{Role: "system", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Result{QualityScore: 0, Issues: []string{fmt.Sprintf("reflection call failed: %v", err)}}
	}

	parsed, err := parseReply(chatResult.Content)
	if err != nil {
		return Result{QualityScore: 0, Issues: []string{fmt.Sprintf("reflection reply could not be parsed: %v", err)}}
	}
	return parsed
}

func buildPrompt(question string, result consensus.Result) string {
	var answer string
	if result.Representative != nil {
		answer = result.Representative.Answer
	}

	var sb strings.Builder
	first := true
	for _, resp := range result.Responses {
		if !resp.Success || resp.Answer == "" {
			continue
		}
		if !first {
			sb.WriteString("\n\n")
		}
		first = false
		sb.WriteString(fmt.Sprintf("[%s]: %s", resp.Model, truncate(resp.Answer, answerCap)))
	}

	return fmt.Sprintf(criticSystemPrompt, question, answer, sb.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type criticReply struct {
	QualityScore  int      `json:"qualityScore"`
	Issues        []string `json:"issues"`
	RefinedAnswer string   `json:"refinedAnswer"`
}

// parseReply extracts a JSON object from reply, tolerating ```json fences.
func parseReply(reply string) (Result, error) {
	cleaned := stripFences(reply)

	var parsed criticReply
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Result{}, fmt.Errorf("decode critic JSON: %w", err)
	}

	return Result{
		QualityScore:  parsed.QualityScore,
		Issues:        parsed.Issues,
		RefinedAnswer: parsed.RefinedAnswer,
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Apply implements the replacement rule: when result.QualityScore is at
// least QualityThreshold, the representative answer is replaced with the
// refined answer and the original is preserved for the caller.
func Apply(consensusResult *consensus.Result, reflectionResult Result) {
	if reflectionResult.QualityScore < QualityThreshold {
		return
	}
	if consensusResult.Representative == nil {
		return
	}
	original := consensusResult.Representative.Answer
	consensusResult.OriginalAnswer = &original
	consensusResult.QualityScore = &reflectionResult.QualityScore
	consensusResult.Representative.Answer = reflectionResult.RefinedAnswer
}
