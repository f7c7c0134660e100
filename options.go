package compass

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port             int
	modelRouterURL   string
	modelRouterToken string
	logger           *slog.Logger
	version          string
	moderator        Moderator
	queryHooks       []QueryHook
	routeRegistrars  []RouteRegistrar
	middlewares      []Middleware
}

// WithPort overrides the TCP port from config (PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithModelRouterURL overrides the Model Router base URL from config
// (MODEL_ROUTER_URL env var).
func WithModelRouterURL(url string) Option {
	return func(o *resolvedOptions) { o.modelRouterURL = url }
}

// WithModelRouterToken overrides the Model Router bearer token from
// config (MODEL_ROUTER_TOKEN env var).
func WithModelRouterToken(token string) Option {
	return func(o *resolvedOptions) { o.modelRouterToken = token }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the startup log, the
// OpenTelemetry resource, and the MCP server info. GET /status does not
// include it.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithModerator sets the optional output-moderation collaborator.
// Only the last call wins. See the Moderator interface for the
// reserved-extension-point caveat.
func WithModerator(m Moderator) Option {
	return func(o *resolvedOptions) { o.moderator = m }
}

// WithQueryHook registers a hook to receive query-completion notifications.
// Multiple hooks may be registered; all registered hooks receive every event.
func WithQueryHook(hook QueryHook) Option {
	return func(o *resolvedOptions) { o.queryHooks = append(o.queryHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
