// Package mcp exposes Compass's jury query and memory inspection as Model
// Context Protocol tools, so MCP-compatible agents can ask the jury and
// read back memory stats over the same StreamableHTTP transport the
// façade serves at /mcp.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/memory"
	"github.com/ashita-ai/compass/internal/orchestrator"
)

// Orchestrator is the subset of orchestrator.Orchestrator the MCP tools need.
type Orchestrator interface {
	ExecuteJuryQuery(ctx context.Context, req orchestrator.Request) (consensus.Result, error)
}

// MemoryStats is the subset of memory.Store the memory_stats tool needs.
type MemoryStats interface {
	Stats(ctx context.Context) (memory.Stats, error)
}

// Server wraps the MCP server with Compass's jury and memory collaborators.
type Server struct {
	mcpServer *mcpserver.MCPServer
	orch      Orchestrator
	mem       MemoryStats
	logger    *slog.Logger
}

// New creates and configures an MCP server exposing ask_jury and, when mem
// is non-nil, memory_stats. mem may be nil when memory is disabled.
func New(orch Orchestrator, mem MemoryStats, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, mem: mem, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"compass",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("ask_jury",
			mcplib.WithDescription("Ask a question to Compass's model jury and receive a consensus verdict"),
			mcplib.WithString("question", mcplib.Description("The question to ask"), mcplib.Required()),
			mcplib.WithString("context", mcplib.Description("Optional caller-supplied context to include with the question")),
			mcplib.WithString("session_id", mcplib.Description("Session ID to thread conversational memory across calls")),
		),
		s.handleAskJury,
	)

	if s.mem != nil {
		s.mcpServer.AddTool(
			mcplib.NewTool("memory_stats",
				mcplib.WithDescription("Report the current size of Compass's session and long-term memory"),
			),
			s.handleMemoryStats,
		)
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
