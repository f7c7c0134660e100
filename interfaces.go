package compass

import (
	"context"
	"net/http"
)

// Moderator is an output-moderation collaborator over a jury's
// representative answer. A Moderator set via WithModerator is stored but
// never called: no step of the query pipeline consults it, and answers
// are returned unmoderated. guardrail.ValidateOutput in
// internal/guardrail likewise has no production caller.
type Moderator interface {
	Moderate(ctx context.Context, answer string) (ModerationResult, error)
}

// QueryHook receives an async notification every time a jury query
// completes, success or failure. Multiple hooks may be registered via
// multiple WithQueryHook calls; hook methods run in goroutines and must
// not block indefinitely. Failures are logged but never fail the
// originating request.
type QueryHook interface {
	OnQueryCompleted(ctx context.Context, result Verdict) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Called once during New(), after every built-in route is registered.
// Extra routes share the mux, middleware chain, and OTEL instrumentation
// with the built-in routes.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler. Applied outermost — it sees
// every request, including /health and /metrics. Multiple middlewares
// are applied in registration order (first-registered is outermost).
type Middleware func(http.Handler) http.Handler
