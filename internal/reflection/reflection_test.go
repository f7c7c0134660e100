package reflection

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/router"
)

type fakeClient struct {
	content string
	err     error
}

func (f fakeClient) ChatCompletion(ctx context.Context, req router.ChatRequest) (*router.ChatResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &router.ChatResult{Content: f.content}, nil
}

func baseResult(answer string) consensus.Result {
	return consensus.Result{
		Verdict:        consensus.VerdictUnanimous,
		Representative: &consensus.ModelResponse{Model: "gpt-4o", Answer: answer},
		Responses: []consensus.ModelResponse{
			{Model: "gpt-4o", Answer: answer, Success: true},
			{Model: "claude-3-5-sonnet", Answer: answer, Success: true},
		},
	}
}

func TestRunParsesPlainJSON(t *testing.T) {
	client := fakeClient{content: `{"qualityScore": 85, "issues": [], "refinedAnswer": "The refined answer."}`}
	r := New(client, "claude-3-5-sonnet", slog.Default())

	result := r.Run(context.Background(), "what is it?", baseResult("original"))
	if result.QualityScore != 85 {
		t.Errorf("QualityScore = %d, want 85", result.QualityScore)
	}
	if result.RefinedAnswer != "The refined answer." {
		t.Errorf("RefinedAnswer = %q", result.RefinedAnswer)
	}
}

func TestRunParsesFencedJSON(t *testing.T) {
	client := fakeClient{content: "```json\n{\"qualityScore\": 60, \"issues\": [\"vague\"], \"refinedAnswer\": \"better\"}\n```"}
	r := New(client, "claude-3-5-sonnet", slog.Default())

	result := r.Run(context.Background(), "q", baseResult("a"))
	if result.QualityScore != 60 {
		t.Errorf("QualityScore = %d, want 60", result.QualityScore)
	}
	if len(result.Issues) != 1 || result.Issues[0] != "vague" {
		t.Errorf("Issues = %v", result.Issues)
	}
}

func TestRunHandlesTransportFailure(t *testing.T) {
	client := fakeClient{err: errors.New("connection reset")}
	r := New(client, "claude-3-5-sonnet", slog.Default())

	result := r.Run(context.Background(), "q", baseResult("a"))
	if result.QualityScore != 0 {
		t.Errorf("QualityScore = %d, want 0 on failure", result.QualityScore)
	}
	if len(result.Issues) == 0 {
		t.Error("expected an issue describing the failure")
	}
}

func TestRunHandlesMalformedReply(t *testing.T) {
	client := fakeClient{content: "I cannot comply with that request."}
	r := New(client, "claude-3-5-sonnet", slog.Default())

	result := r.Run(context.Background(), "q", baseResult("a"))
	if result.QualityScore != 0 {
		t.Errorf("QualityScore = %d, want 0 on parse failure", result.QualityScore)
	}
}

func TestApplyReplacesAboveThreshold(t *testing.T) {
	cr := baseResult("original answer")
	Apply(&cr, Result{QualityScore: 70, RefinedAnswer: "refined answer"})

	if cr.Representative.Answer != "refined answer" {
		t.Errorf("Representative.Answer = %q, want refined answer", cr.Representative.Answer)
	}
	if cr.OriginalAnswer == nil || *cr.OriginalAnswer != "original answer" {
		t.Errorf("OriginalAnswer = %v, want original answer", cr.OriginalAnswer)
	}
	if cr.QualityScore == nil || *cr.QualityScore != 70 {
		t.Errorf("QualityScore = %v, want 70", cr.QualityScore)
	}
}

func TestApplyLeavesAnswerUntouchedBelowThreshold(t *testing.T) {
	// Never decreases observable correctness: below threshold, the
	// representative answer must be byte-identical to the aggregator's
	// original choice.
	cr := baseResult("original answer")
	Apply(&cr, Result{QualityScore: 69, RefinedAnswer: "should not be used"})

	if cr.Representative.Answer != "original answer" {
		t.Errorf("Representative.Answer = %q, want unchanged", cr.Representative.Answer)
	}
	if cr.OriginalAnswer != nil {
		t.Errorf("OriginalAnswer = %v, want nil", cr.OriginalAnswer)
	}
}

func TestApplyNoRepresentative(t *testing.T) {
	cr := consensus.Result{Verdict: consensus.VerdictNoConsensus}
	Apply(&cr, Result{QualityScore: 90, RefinedAnswer: "x"})
	if cr.Representative != nil {
		t.Error("Representative should remain nil")
	}
}
