package aurum

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	notifyURL       string
	logger          *slog.Logger
	version         string
	languageModel   LanguageModel
	priceCatalog    PriceCatalog
	handoffHooks    []HandoffHook
	middlewares     []Middleware
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (AURUM_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Handoff hooks and the handoff stream need it; a pooled connection cannot LISTEN.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithLanguageModel replaces the language model selected from config.
// Only the last call wins.
func WithLanguageModel(m LanguageModel) Option {
	return func(o *resolvedOptions) { o.languageModel = m }
}

// WithPriceCatalog replaces the products-table catalog, e.g. with a client
// for the store's ERP. Only the last call wins.
func WithPriceCatalog(c PriceCatalog) Option {
	return func(o *resolvedOptions) { o.priceCatalog = c }
}

// WithHandoffHook registers a hook for escalated conversations.
// Multiple hooks may be registered; all registered hooks receive every handoff.
func WithHandoffHook(hook HandoffHook) Option {
	return func(o *resolvedOptions) { o.handoffHooks = append(o.handoffHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Applied in registration order: the first-registered middleware is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds an SQL migration filesystem to run after the
// embedded migrations. Filesystems are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
