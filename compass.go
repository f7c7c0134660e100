// Package compass is the public API for embedding the Compass AI jury
// server.
//
// Enterprise and plugin consumers import this package to construct and
// extend the server without forking it:
//
//	app, err := compass.New(
//	    compass.WithVersion(version),
//	    compass.WithLogger(logger),
//	    compass.WithQueryHook(myAuditHook{}),
//	    compass.WithExtraRoutes(myExtraRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: compass (root)
// imports internal/*, but internal/* never imports compass (root).
// Public types (Verdict, ModelAnswer, etc.) are standalone structs with
// no internal imports; the conversion helper (toPublicVerdict) lives
// here because this is the only file that sees both sides of the
// boundary.
package compass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/compass/internal/config"
	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/fanout"
	"github.com/ashita-ai/compass/internal/mcp"
	"github.com/ashita-ai/compass/internal/memory"
	"github.com/ashita-ai/compass/internal/metrics"
	"github.com/ashita-ai/compass/internal/orchestrator"
	"github.com/ashita-ai/compass/internal/ratelimit"
	"github.com/ashita-ai/compass/internal/reflection"
	"github.com/ashita-ai/compass/internal/router"
	"github.com/ashita-ai/compass/internal/routertoken"
	"github.com/ashita-ai/compass/internal/server"
	"github.com/ashita-ai/compass/internal/station"
	"github.com/ashita-ai/compass/internal/telemetry"
	"github.com/ashita-ai/compass/ui"
)

// tokenCheckInterval is how often the router token inspector re-checks
// the configured token's expiry against the local clock.
const tokenCheckInterval = 5 * time.Minute

// App is the Compass server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	orch         *orchestrator.Orchestrator
	srv          *server.Server
	mem          *memory.Store
	stationCli   *station.Client
	tokenInspect *routertoken.Inspector
	metricsReg   *metrics.Registry
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initializes the Compass server. It wires the Model Router client,
// the jury fan-out and aggregation pipeline, optional memory and
// reflection, Station telemetry, and the HTTP façade, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.modelRouterURL != "" {
		cfg.ModelRouterURL = o.modelRouterURL
	}
	if o.modelRouterToken != "" {
		cfg.ModelRouterToken = o.modelRouterToken
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("compass starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	routerClient := router.New(router.Config{
		BaseURL: cfg.ModelRouterURL,
		AgentID: cfg.AgentID,
		Token:   cfg.ModelRouterToken,
		Timeout: cfg.RouterTimeout,
	})

	tokenInspector := routertoken.NewInspector(cfg.ModelRouterToken, logger, 10*time.Minute)

	metricsReg := metrics.New()

	dispatcher := fanout.New(routerClient, tokenInspector, nil)

	var reflector orchestrator.Reflector
	if cfg.EnableReflection {
		reflector = reflection.New(routerClient, cfg.ReflectionModel, logger)
	}

	var mem *memory.Store
	if cfg.EnableMemory {
		mem, err = memory.Open(context.Background())
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("memory: %w", err)
		}
	}

	// Guardrail moderation is a reserved extension point (see Moderator)
	// and is intentionally not consulted by the orchestrator today, so
	// a configured Moderator is not wired into any collaborator below.
	_ = o.moderator

	orch := orchestrator.New(dispatcher, memoryOrNil(mem), reflector, metricsReg, logger, orchestrator.Defaults{
		Models:           cfg.Models,
		EnableReflection: cfg.EnableReflection,
		EnableMemory:     cfg.EnableMemory,
		EnableGuardrails: cfg.EnableGuardrails,
	})

	for _, h := range o.queryHooks {
		orch.AddHook(&queryHookAdapter{hook: h})
	}

	var stationCli *station.Client
	if cfg.StationURL != "" {
		stationCli = station.New(station.Config{
			StationURL:   cfg.StationURL,
			CollectorURL: cfg.CollectorURL,
			AgentID:      cfg.AgentID,
			AgentKey:     cfg.AgentKey,
			AgentName:    "compass",
		}, logger)
	} else {
		logger.Info("station: disabled (no PAP_STATION_URL)")
	}

	mcpSrv := mcp.New(orch, memoryStatsOrNil(mem), logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	uiFS, err := ui.DistFS()
	if err != nil {
		if mem != nil {
			_ = mem.Close()
		}
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ui: %w", err)
	}
	if uiFS != nil {
		logger.Info("ui: embedded SPA loaded")
	}

	var extraRoutes []func(*http.ServeMux)
	for _, fn := range o.routeRegistrars {
		fn := fn
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux) { fn(mux) })
	}

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		mw := mw
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	srv := server.New(server.ServerConfig{
		Orchestrator:     orch,
		Logger:           logger,
		Mem:              mem,
		Station:          stationCli,
		Metrics:          metricsReg,
		Models:           routerClient,
		Limiter:          limiter,
		MCPServer:        mcpSrv.MCPServer(),
		Port:             cfg.Port,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Version:          version,
		ConfiguredModels: cfg.Models,
		ExtraRoutes:      extraRoutes,
		Middlewares:      middlewares,
		UIFS:             uiFS,
	})

	return &App{
		cfg:          cfg,
		orch:         orch,
		srv:          srv,
		mem:          mem,
		stationCli:   stationCli,
		tokenInspect: tokenInspector,
		metricsReg:   metricsReg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// memoryOrNil returns a nil orchestrator.MemoryStore interface value when
// mem is nil, rather than a non-nil interface wrapping a nil *Store.
func memoryOrNil(mem *memory.Store) orchestrator.MemoryStore {
	if mem == nil {
		return nil
	}
	return mem
}

func memoryStatsOrNil(mem *memory.Store) mcp.MemoryStats {
	if mem == nil {
		return nil
	}
	return mem
}

// Run starts all background goroutines and the HTTP server, then blocks
// until ctx is cancelled or a fatal server error occurs. On return,
// Shutdown is called automatically — callers should not call Shutdown
// separately.
func (a *App) Run(ctx context.Context) error {
	if a.stationCli != nil {
		if err := a.stationCli.Transition(ctx, station.StateProvisioned, "startup"); err != nil {
			a.logger.Warn("station: provisioned transition failed", "error", err)
		}
		if err := a.stationCli.Transition(ctx, station.StateActive, "serving traffic"); err != nil {
			a.logger.Warn("station: active transition failed", "error", err)
		}
		a.stationCli.Start(ctx, stationMetricsAdapter{a.metricsReg})
	}

	if a.mem != nil {
		a.mem.StartReaper(ctx, a.cfg.SessionTTL, a.cfg.SessionTTL/2)
	}

	go a.tokenInspectionLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// tokenInspectionLoop periodically re-checks the configured Model Router
// token's expiry so an approaching expiry is logged well before calls
// start failing with 401s.
func (a *App) tokenInspectionLoop(ctx context.Context) {
	ticker := time.NewTicker(tokenCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tokenInspect.CheckOnce()
		}
	}
}

// Shutdown performs a graceful shutdown: transition Station to DRAINING
// then TERMINATED, drain the HTTP server, and close memory and OTEL.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("compass shutting down")

	if a.stationCli != nil {
		if err := a.stationCli.Transition(ctx, station.StateDraining, "shutdown requested"); err != nil {
			a.logger.Warn("station: draining transition failed", "error", err)
		}
	}

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	if a.stationCli != nil {
		if err := a.stationCli.Transition(ctx, station.StateTerminated, "shutdown complete"); err != nil {
			a.logger.Warn("station: terminated transition failed", "error", err)
		}
	}

	if a.mem != nil {
		if err := a.mem.Close(); err != nil {
			a.logger.Warn("memory: close failed", "error", err)
		}
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("compass stopped")
	return nil
}

// stationMetricsAdapter adapts *metrics.Registry to station.MetricsSource.
type stationMetricsAdapter struct{ r *metrics.Registry }

func (a stationMetricsAdapter) RequestsHandled() int64 {
	return a.r.Snapshot().RequestsTotal
}

func (a stationMetricsAdapter) CustomMetrics() map[string]any {
	s := a.r.Snapshot()
	return map[string]any{
		"queries_total":      s.QueriesTotal,
		"successful_total":   s.SuccessfulTotal,
		"failed_total":       s.FailedTotal,
		"unanimous_total":    s.UnanimousTotal,
		"split_total":        s.SplitTotal,
		"no_consensus_total": s.NoConsensusTotal,
	}
}

// queryHookAdapter wraps a public QueryHook to satisfy orchestrator.Hook.
type queryHookAdapter struct{ hook QueryHook }

func (a *queryHookAdapter) OnCompleted(ctx context.Context, req orchestrator.Request, result consensus.Result) error {
	return a.hook.OnQueryCompleted(ctx, toPublicVerdict(req.Question, result))
}

// toPublicVerdict converts an internal consensus.Result to the public
// compass.Verdict, the only conversion point that sees both sides of the
// package boundary.
func toPublicVerdict(question string, r consensus.Result) Verdict {
	responses := make([]ModelAnswer, len(r.Responses))
	for i, resp := range r.Responses {
		responses[i] = ModelAnswer{
			Model:     resp.Model,
			Answer:    resp.Answer,
			Success:   resp.Success,
			Error:     resp.Error,
			LatencyMS: resp.LatencyMS,
		}
	}
	var answer string
	if r.Representative != nil {
		answer = r.Representative.Answer
	}
	return Verdict{
		Question:    question,
		Answer:      answer,
		Verdict:     string(r.Verdict),
		Confidence:  string(r.Confidence),
		Score:       r.Score,
		Responses:   responses,
		SessionID:   r.SessionID,
		MemoryUsed:  r.MemoryUsed,
		CompletedAt: time.Now(),
	}
}
