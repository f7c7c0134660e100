// Package router implements the Model Router HTTP client: the single
// upstream through which Compass reaches every jury model.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPDoer is satisfied by *http.Client; accepting the interface keeps
// Client testable without a live server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxRetries is the number of additional attempts beyond the first for
// retryable errors (transport failures, rate limits within budget).
const maxRetries = 2

// Client is an HTTP client for the Model Router's chat completion API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	agentID string
	token   string
	client  HTTPDoer
}

// New creates a Client from the given configuration.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		agentID: cfg.AgentID,
		token:   cfg.Token,
		client:  httpClient,
	}
}

// ChatCompletion asks one model to answer one conversation. It retries
// transport failures and rate-limit responses (honoring Retry-After) up
// to maxRetries additional attempts with linear back-off; auth and
// budget errors are never retried.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	req.Stream = false

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("model router: marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, routerErr := c.attempt(ctx, encoded)
		if routerErr == nil {
			return result, nil
		}
		lastErr = routerErr

		rerr, ok := routerErr.(*Error)
		if !ok || !rerr.Retryable() {
			return nil, routerErr
		}
		if rerr.Kind == KindRateLimit && rerr.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(rerr.RetryAfter) * time.Second):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, body []byte) (*ChatResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("model router: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-PAP-Agent-Id", c.agentID)
	httpReq.Header.Set("X-PAP-Request-Id", uuid.NewString())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, classifyError(resp, bodyBytes)
	}

	var decoded chatResponseBody
	if err := json.Unmarshal(bodyBytes, &decoded); err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(decoded.Choices) == 0 {
		return nil, &Error{Kind: KindTransport, Message: "response contained no choices"}
	}

	return &ChatResult{
		Content:          decoded.Choices[0].Message.Content,
		FinishReason:     decoded.Choices[0].FinishReason,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
		TotalTokens:      decoded.Usage.TotalTokens,
		Meta:             responseMeta(resp),
	}, nil
}

func classifyError(resp *http.Response, body []byte) *Error {
	msg := errorMessage(body)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuth, StatusCode: resp.StatusCode, Message: msg}
	case http.StatusPaymentRequired:
		return &Error{Kind: KindBudget, StatusCode: resp.StatusCode, Message: msg}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, StatusCode: resp.StatusCode, Message: msg, RetryAfter: parseRetryAfter(resp)}
	default:
		return &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: msg}
	}
}

type routerErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var envelope routerErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(body)
}

func parseRetryAfter(resp *http.Response) int {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return seconds
}

func responseMeta(resp *http.Response) ResponseMeta {
	cost, _ := strconv.ParseFloat(resp.Header.Get("X-Request-Cost"), 64)
	latency, _ := strconv.Atoi(resp.Header.Get("X-Request-Latency-Ms"))
	return ResponseMeta{
		CostUSD:       cost,
		LatencyMS:     latency,
		ModelProvider: resp.Header.Get("X-Model-Provider"),
		CacheHit:      resp.Header.Get("X-Cache-Status") == "HIT",
	}
}

// ListModels returns the models currently available from the router.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("model router: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-PAP-Agent-Id", c.agentID)
	httpReq.Header.Set("X-PAP-Request-Id", uuid.NewString())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("read response body: %v", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, classifyError(resp, bodyBytes)
	}

	var decoded modelListResponse
	if err := json.Unmarshal(bodyBytes, &decoded); err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("decode response: %v", err)}
	}

	models := make([]ModelInfo, len(decoded.Data))
	for i, m := range decoded.Data {
		models[i] = ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy}
	}
	return models, nil
}
