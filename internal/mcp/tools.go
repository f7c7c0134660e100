package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/guardrail"
	"github.com/ashita-ai/compass/internal/orchestrator"
)

// toolVerdict is the JSON shape ask_jury returns: the consensus verdict
// plus per-model responses, trimmed of internal-only fields.
type toolVerdict struct {
	Verdict    consensus.Verdict         `json:"verdict"`
	Confidence consensus.Confidence      `json:"confidence"`
	Score      float64                   `json:"score"`
	Answer     string                    `json:"answer,omitempty"`
	Responses  []consensus.ModelResponse `json:"responses"`
	MemoryUsed bool                      `json:"memory_used"`
	SessionID  string                    `json:"session_id,omitempty"`
}

func newToolVerdict(r consensus.Result) toolVerdict {
	v := toolVerdict{
		Verdict:    r.Verdict,
		Confidence: r.Confidence,
		Score:      r.Score,
		Responses:  r.Responses,
		MemoryUsed: r.MemoryUsed,
		SessionID:  r.SessionID,
	}
	if r.Representative != nil {
		v.Answer = r.Representative.Answer
	}
	return v
}

func (s *Server) handleAskJury(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}
	callerContext := request.GetString("context", "")
	sessionID := request.GetString("session_id", "")

	result, err := s.orch.ExecuteJuryQuery(ctx, orchestrator.Request{
		Question:  question,
		Context:   callerContext,
		SessionID: sessionID,
	})
	if err != nil {
		var blocked *guardrail.BlockedError
		if errors.As(err, &blocked) {
			resultData, _ := json.Marshal(map[string]any{
				"blocked":    true,
				"reason":     blocked.Reason,
				"risk_level": blocked.Risk,
			})
			return &mcplib.CallToolResult{
				Content: []mcplib.Content{
					mcplib.TextContent{Type: "text", Text: string(resultData)},
				},
				IsError: true,
			}, nil
		}
		return errorResult(fmt.Sprintf("jury query failed: %v", err)), nil
	}

	resultData, err := json.MarshalIndent(newToolVerdict(result), "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal verdict: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleMemoryStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	stats, err := s.mem.Stats(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("memory stats failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"active_sessions":       stats.ActiveSessions,
		"total_session_queries": stats.TotalSessionQueries,
		"long_term_memory_size": stats.LongTermMemorySize,
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}
