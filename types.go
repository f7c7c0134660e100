package compass

import "time"

// Verdict is the public representation of one jury query's outcome. It
// is a curated view of internal/consensus.Result for use in extension
// interfaces — no internal package imports, safe to use from outside
// this module.
type Verdict struct {
	Question    string
	Answer      string
	Verdict     string // "unanimous" | "split" | "no_consensus"
	Confidence  string // "high" | "medium" | "low"
	Score       float64
	Responses   []ModelAnswer
	SessionID   string
	MemoryUsed  bool
	CompletedAt time.Time
}

// ModelAnswer is one jury member's response to a question.
type ModelAnswer struct {
	Model     string
	Answer    string
	Success   bool
	Error     string
	LatencyMS int64
}

// ModerationResult is the outcome of an optional output-moderation call.
type ModerationResult struct {
	Safe     bool
	Concerns []string
}
