// Package aurum is the public API for embedding the Aurum chatbot core.
//
// The messaging adapter or an enterprise build imports this package to
// construct and extend the server without forking it:
//
//	app, err := aurum.New(
//	    aurum.WithVersion(version),
//	    aurum.WithLogger(logger),
//	    aurum.WithPriceCatalog(erpCatalog),
//	    aurum.WithHandoffHook(crmHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: aurum (root) imports
// internal/*, but internal/* never imports aurum (root). Public types are
// standalone structs; the adapters that convert them live in this file
// because it is the only one that sees both sides of the boundary.
package aurum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/aurum-labs/aurum/api"
	"github.com/aurum-labs/aurum/internal/config"
	"github.com/aurum-labs/aurum/internal/llm"
	"github.com/aurum-labs/aurum/internal/mcp"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/ratelimit"
	"github.com/aurum-labs/aurum/internal/retry"
	"github.com/aurum-labs/aurum/internal/server"
	"github.com/aurum-labs/aurum/internal/service/chat"
	"github.com/aurum-labs/aurum/internal/service/conversation"
	"github.com/aurum-labs/aurum/internal/service/decisionlog"
	"github.com/aurum-labs/aurum/internal/service/flow"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
	"github.com/aurum-labs/aurum/internal/service/intent"
	"github.com/aurum-labs/aurum/internal/service/validation"
	"github.com/aurum-labs/aurum/internal/storage"
	"github.com/aurum-labs/aurum/internal/telemetry"
	"github.com/aurum-labs/aurum/migrations"
)

// App is the Aurum server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	broker       *server.Broker // nil when no notify connection
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Aurum server. It connects to the database, runs
// migrations, wires the chat pipeline, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections. Call Run.
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
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("aurum starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), storage.Options{
		PoolDSN:   cfg.DatabaseURL,
		NotifyDSN: cfg.NotifyURL,
		MaxConns:  int32(cfg.DBMaxConns),
	}, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	fail := func(format string, err error) (*App, error) {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf(format, err)
	}

	if cfg.SkipEmbeddedMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		return fail("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			return fail("extra migrations: %w", fmt.Errorf("[%d]: %w", i, err))
		}
	}

	// Verify the schema is in place; a skipped migration otherwise surfaces
	// as a 500 on the first customer message.
	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'conversations')`,
	).Scan(&schemaOK); err != nil {
		return fail("schema verification: %w", err)
	}
	if !schemaOK {
		return fail("schema verification: %w", errors.New("table 'conversations' does not exist after migration"))
	}

	// Language model: external override wins over config.
	var lm llm.Client
	if o.languageModel != nil {
		lm = &languageModelAdapter{m: o.languageModel}
		logger.Info("llm: using external language model", "name", o.languageModel.Name())
	} else {
		lm = llm.New(llm.Config{
			Provider:     cfg.LLMProvider,
			OpenAIAPIKey: cfg.OpenAIAPIKey,
			OpenAIModel:  cfg.LLMModel,
			OpenAIURL:    cfg.LLMBaseURL,
			OllamaURL:    cfg.OllamaURL,
			OllamaModel:  cfg.OllamaModel,
			Timeout:      cfg.LLMTimeout,
		}, logger)
	}
	llmRetry := retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay}

	// Price catalog: external override wins over the products table.
	var catalog guardrails.PriceCatalog = guardrails.NewStorageCatalog(db)
	if o.priceCatalog != nil {
		catalog = &priceCatalogAdapter{c: o.priceCatalog}
	}

	decisions := decisionlog.New(db, logger)
	policies := guardrails.NewPolicies(db, guardrails.NewPolicyCache(cfg.PolicyCacheTTL), cfg.ConfidenceThreshold, logger)
	chatSvc := chat.New(chat.Deps{
		Store:         db,
		Conversations: conversation.New(db, cfg.TimelineCap, logger),
		Classifier:    intent.New(lm, llmRetry, logger),
		Flow:          flow.New(),
		Guardrails:    guardrails.New(policies, catalog, decisions, logger),
		Validator:     validation.New(lm, llmRetry, logger),
		Decisions:     decisions,
		Catalog:       catalog,
		Rules:         validation.DefaultRules(cfg.ResponseMinLength, cfg.ResponseMaxLength, cfg.ForbiddenTerms),
	}, logger)

	mcpSrv := mcp.New(chatSvc, logger, version)

	// Adapt public handoff hooks to the internal server.HandoffHook.
	var hooks []server.HandoffHook
	for _, h := range o.handoffHooks {
		hooks = append(hooks, &handoffHookAdapter{hook: h})
	}

	var broker *server.Broker
	if db.HasNotify() {
		broker = server.NewBroker(db, hooks, cfg.HandoffHookTimeout, logger)
	} else {
		logger.Info("handoff broker: disabled (no NOTIFY_URL)")
		if len(hooks) > 0 {
			logger.Warn("handoff hooks registered but NOTIFY_URL is empty; hooks will not fire", "hooks", len(hooks))
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	srv := server.New(server.ServerConfig{
		Chat:                chatSvc,
		DB:                  db,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		broker:       broker,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the handoff broker and the HTTP server, then blocks until ctx is
// cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically: callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	if a.broker != nil {
		go a.broker.Start(ctx)
	}

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

// Shutdown stops accepting HTTP requests, drains in-flight ones, then closes
// the rate limiter, the database pool and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("aurum shutting down")

	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownHTTPTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("aurum stopped")
	return nil
}

// Handler returns the root HTTP handler, for mounting Aurum inside another server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// handoffHookAdapter wraps an aurum.HandoffHook to satisfy server.HandoffHook.
type handoffHookAdapter struct {
	hook HandoffHook
}

func (a *handoffHookAdapter) OnHandoff(ctx context.Context, ev model.HandoffEvent) error {
	return a.hook.OnHandoff(ctx, toPublicHandoff(ev))
}

// priceCatalogAdapter wraps an aurum.PriceCatalog to satisfy guardrails.PriceCatalog.
type priceCatalogAdapter struct {
	c PriceCatalog
}

func (a *priceCatalogAdapter) LookupPrice(ctx context.Context, tenantID uuid.UUID, ref string) (guardrails.Price, error) {
	p, err := a.c.LookupPrice(ctx, tenantID, ref)
	if err != nil {
		return guardrails.Price{}, err
	}
	return guardrails.Price{Found: p.Found, Amount: p.Amount, Confirmed: p.Confirmed}, nil
}

// languageModelAdapter wraps an aurum.LanguageModel to satisfy llm.Client.
type languageModelAdapter struct {
	m LanguageModel
}

func (a *languageModelAdapter) Complete(ctx context.Context, r llm.Request) (string, error) {
	return a.m.Complete(ctx, CompletionRequest{System: r.System, User: r.User, JSON: r.JSON})
}

func (a *languageModelAdapter) Name() string { return a.m.Name() }

func toPublicHandoff(ev model.HandoffEvent) Handoff {
	return Handoff{
		TenantID:       ev.TenantID,
		ConversationID: ev.ConversationID,
		ContactID:      ev.ContactID,
		DecisionID:     ev.DecisionID,
		Reason:         string(ev.Reason),
		Stage:          string(ev.Stage),
		At:             ev.At,
	}
}
