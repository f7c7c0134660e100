package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/compass/internal/memory"
	"github.com/ashita-ai/compass/internal/metrics"
	"github.com/ashita-ai/compass/internal/orchestrator"
	"github.com/ashita-ai/compass/internal/ratelimit"
	"github.com/ashita-ai/compass/internal/router"
	"github.com/ashita-ai/compass/internal/station"
)

// Server is the Compass HTTP façade.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Mem, Station, Metrics, Models, Limiter, UIFS.
type ServerConfig struct {
	// Required dependencies.
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled feature).
	Mem       *memory.Store
	Station   *station.Client
	Metrics   *metrics.Registry
	Models    *router.Client
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Version          string
	ConfiguredModels []string

	// ExtraRoutes registers additional handlers on the shared mux, called
	// once during New() after all built-in routes are registered.
	ExtraRoutes []func(*http.ServeMux)

	// Middlewares are applied outermost-first, around the entire chain
	// (including request ID, tracing, and recovery).
	Middlewares []func(http.Handler) http.Handler

	// Optional embedded assets.
	UIFS fs.FS
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	var stationAdapter StationStatus
	if cfg.Station != nil {
		stationAdapter = stationStatusAdapter{cfg.Station}
	}
	var metricsAdapter MetricsSnapshotter
	if cfg.Metrics != nil {
		metricsAdapter = registrySnapshotter{cfg.Metrics}
	}
	var modelsAdapter ModelLister
	if cfg.Models != nil {
		modelsAdapter = routerModelLister{cfg.Models}
	}

	h := NewHandlers(HandlersDeps{
		Orchestrator:     cfg.Orchestrator,
		Mem:              cfg.Mem,
		Station:          stationAdapter,
		Metrics:          metricsAdapter,
		Models:           modelsAdapter,
		Logger:           cfg.Logger,
		Version:          cfg.Version,
		ConfiguredModels: cfg.ConfiguredModels,
	})

	reqIDFunc := func(r *http.Request) string { return RequestIDFromContext(r.Context()) }

	var rl func(http.Handler) http.Handler
	if cfg.Limiter != nil {
		rl = ratelimit.MiddlewareWithRequestID(cfg.Limiter, ratelimit.SessionKeyFunc, reqIDFunc)
	} else {
		rl = func(next http.Handler) http.Handler { return next }
	}

	// The gate reads the handlers' station on every request; with no
	// station configured it lets every request through.
	gate := func() bool { return h.station == nil || h.station.IsActive() }
	activeOnly := func(next http.Handler) http.Handler { return lifecycleGate(gate, next) }

	mux := http.NewServeMux()

	mux.Handle("POST /query", rl(activeOnly(http.HandlerFunc(h.HandleQuery))))
	mux.Handle("POST /api/chat", rl(activeOnly(http.HandlerFunc(h.HandleChat))))
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /metrics", h.HandleMetrics)
	mux.HandleFunc("GET /api/chat/history/{sessionId}", h.HandleChatHistory)
	mux.HandleFunc("GET /api/memory/stats", h.HandleMemoryStats)

	// MCP: same tool surface as ask_jury/memory_stats, over StreamableHTTP.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	for _, fn := range cfg.ExtraRoutes {
		fn(mux)
	}

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// caller-supplied middlewares → request ID → security headers →
	// tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers for tests and wiring.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// stationStatusAdapter adapts *station.Client to the StationStatus
// interface so this package need not name station's concrete enum
// types in its own exported surface.
type stationStatusAdapter struct{ c *station.Client }

func (a stationStatusAdapter) IsHealthy() bool       { return a.c.IsHealthy() }
func (a stationStatusAdapter) IsActive() bool        { return a.c.IsActive() }
func (a stationStatusAdapter) State() string         { return string(a.c.State()) }
func (a stationStatusAdapter) Mode() string          { return string(a.c.Mode()) }
func (a stationStatusAdapter) Uptime() time.Duration { return a.c.Uptime() }

// registrySnapshotter adapts *metrics.Registry to MetricsSnapshotter.
type registrySnapshotter struct{ r *metrics.Registry }

func (a registrySnapshotter) Snapshot() MetricsSnapshot {
	s := a.r.Snapshot()
	return MetricsSnapshot{
		QueriesTotal:     s.QueriesTotal,
		SuccessfulTotal:  s.SuccessfulTotal,
		FailedTotal:      s.FailedTotal,
		RequestsTotal:    s.RequestsTotal,
		UnanimousTotal:   s.UnanimousTotal,
		SplitTotal:       s.SplitTotal,
		NoConsensusTotal: s.NoConsensusTotal,
	}
}

func (a registrySnapshotter) WriteExposition(w io.Writer) error { return a.r.WriteExposition(w) }

// routerModelLister adapts *router.Client to ModelLister.
type routerModelLister struct{ c *router.Client }

func (a routerModelLister) ListModels(ctx context.Context) ([]ModelInfo, error) {
	models, err := a.c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ModelInfo, len(models))
	for i, m := range models {
		out[i] = ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy}
	}
	return out, nil
}
