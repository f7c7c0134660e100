package router

import "time"

// Message is one entry in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponseBody is the raw JSON shape returned by the Model Router.
type chatResponseBody struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

// ResponseMeta captures per-call billing/observability metadata carried in
// response headers. It is surfaced for operator logging and metrics only;
// nothing in the jury algorithm depends on it.
type ResponseMeta struct {
	CostUSD       float64
	LatencyMS     int
	ModelProvider string
	CacheHit      bool
}

// ChatResult is the decoded outcome of a successful ChatCompletion call.
type ChatResult struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Meta             ResponseMeta
}

// modelListEntry is one entry of GET /v1/models's data array.
type modelListEntry struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Data []modelListEntry `json:"data"`
}

// ModelInfo is the public shape returned by ListModels.
type ModelInfo struct {
	ID      string
	OwnedBy string
}

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Model Router (e.g. "http://localhost:9000").
	BaseURL string

	// AgentID is sent as X-PAP-Agent-Id on every request.
	AgentID string

	// Token is the pre-issued bearer JWT used to authenticate with the
	// router. Compass never issues or refreshes this token itself.
	Token string

	// Timeout applies to each individual HTTP attempt (not the whole
	// retry sequence).
	Timeout time.Duration

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client using Timeout is constructed.
	HTTPClient HTTPDoer
}
