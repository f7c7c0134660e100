package compass

import "time"

// ModelAnswer is one jury member's response to a question.
type ModelAnswer struct {
	Model     string `json:"model"`
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Verdict is the result of a jury query, mirroring the façade's
// consensus.Result JSON shape.
type Verdict struct {
	Verdict           string        `json:"verdict"`
	Confidence        string        `json:"confidence"`
	Score             float64       `json:"score"`
	Responses         []ModelAnswer `json:"responses"`
	Representative    *ModelAnswer  `json:"representative,omitempty"`
	Dissenter         *ModelAnswer  `json:"dissenter,omitempty"`
	QualityScore      *int          `json:"quality_score,omitempty"`
	OriginalAnswer    *string       `json:"original_answer,omitempty"`
	SessionID         string        `json:"session_id,omitempty"`
	MemoryUsed        bool          `json:"memory_used"`
	GuardrailsApplied bool          `json:"guardrails_applied"`
}

// QueryOptions are optional overrides for a Query call.
type QueryOptions struct {
	// Models overrides the server's default jury model set for this
	// call only.
	Models []string
	// SessionID threads conversational memory across calls. Sent as
	// the X-Session-Id header.
	SessionID string
}

// HistoryEntry is one recorded question/answer from a session's memory.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Verdict   string    `json:"verdict"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the server's reported lifecycle state and metrics snapshot.
type Status struct {
	State            string          `json:"state"`
	Mode             string          `json:"mode"`
	Uptime           int64           `json:"uptime"`
	Metrics          MetricsSnapshot `json:"metrics"`
	ConfiguredModels []string        `json:"configured_models"`
	AvailableModels  []string        `json:"available_models,omitempty"`
}

// MetricsSnapshot mirrors the server's counter set.
type MetricsSnapshot struct {
	QueriesTotal     int64 `json:"queries_total"`
	SuccessfulTotal  int64 `json:"successful_total"`
	FailedTotal      int64 `json:"failed_total"`
	RequestsTotal    int64 `json:"requests_total"`
	UnanimousTotal   int64 `json:"unanimous_total"`
	SplitTotal       int64 `json:"split_total"`
	NoConsensusTotal int64 `json:"no_consensus_total"`
}
