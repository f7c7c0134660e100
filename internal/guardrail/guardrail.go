// Package guardrail validates jury input before it reaches the model
// fan-out and optionally moderates the aggregated output afterward.
package guardrail

import (
	"context"
	"regexp"
	"strings"
)

// RiskLevel classifies how serious a guardrail finding is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const maxInputLength = 10000

// BlockedError reports that input failed validation and must never
// reach fan-out. Reason and Risk are surfaced to the façade as-is.
type BlockedError struct {
	Reason string
	Risk   RiskLevel
}

func (e *BlockedError) Error() string {
	return "guardrail blocked: " + e.Reason
}

// injectionPatterns are case-insensitive regexes covering the fixed list
// of prompt-injection attempts that must never reach fan-out.
var injectionPatterns = compileAll([]string{
	`ignore previous instructions`,
	`disregard your instructions`,
	`forget your instructions`,
	`you are now`,
	`pretend you are`,
	`act as if you`,
	`jailbreak`,
	`DAN mode`,
	`bypass safety`,
	`override instructions`,
	`ignore safety`,
	`system prompt`,
	`reveal your (instructions|prompt|system)`,
})

// sensitiveKeywords are warned on but never block the request.
var sensitiveKeywords = []string{
	"illegal activities",
	"weapons manufacturing",
	"explosives",
	"medical diagnosis",
	"legal advice",
	"self-harm",
	"suicide",
}

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// Warning is a non-blocking finding surfaced alongside an otherwise
// admitted input.
type Warning struct {
	Keyword string
	Risk    RiskLevel
}

// ValidateInput checks question for rejection and warning conditions. A
// non-nil *BlockedError means the input must not proceed to fan-out.
func ValidateInput(question string) ([]Warning, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, &BlockedError{Reason: "input is empty or whitespace-only", Risk: RiskLow}
	}
	if len(question) > maxInputLength {
		return nil, &BlockedError{Reason: "input exceeds the maximum allowed length", Risk: RiskMedium}
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(question) {
			return nil, &BlockedError{Reason: "input matches a blocked pattern", Risk: RiskHigh}
		}
	}

	var warnings []Warning
	lower := strings.ToLower(question)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			warnings = append(warnings, Warning{Keyword: keyword, Risk: RiskMedium})
		}
	}
	return warnings, nil
}

// ModerationResult is the decoded response of an output moderation call.
type ModerationResult struct {
	Safe     bool
	Concerns []string
}

// Moderator issues the optional output-moderation call against a fast,
// low-temperature model.
type Moderator interface {
	Moderate(ctx context.Context, answer string) (ModerationResult, error)
}

// ValidateOutput runs the optional moderation pass over answer. On any
// moderation or parse failure it fails open, returning safe=true with a
// medium-risk warning rather than blocking an already-produced verdict.
func ValidateOutput(ctx context.Context, moderator Moderator, answer string) (ModerationResult, RiskLevel) {
	if moderator == nil {
		return ModerationResult{Safe: true}, RiskLow
	}
	result, err := moderator.Moderate(ctx, answer)
	if err != nil {
		return ModerationResult{Safe: true, Concerns: []string{"moderation call failed, failing open"}}, RiskMedium
	}
	if !result.Safe {
		return result, RiskHigh
	}
	return result, RiskLow
}
