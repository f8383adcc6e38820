package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aurum-labs/aurum/internal/ratelimit"
	"github.com/aurum-labs/aurum/internal/service/chat"
)

// Server is the Aurum HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Broker, MCPServer, OpenAPISpec, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	Chat   *chat.Service
	DB     Pinger
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	OpenAPISpec []byte

	// Middlewares wrap the whole handler. The first one is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Chat:                cfg.Chat,
		DB:                  cfg.DB,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Customer messages are limited per tenant and contact.
	messageRL := ratelimit.Middleware(cfg.Limiter, contactKeyFunc(cfg.MaxRequestBodyBytes), RequestIDFromRequest, cfg.Logger)

	mux := http.NewServeMux()

	// Conversation pipeline.
	mux.Handle("POST /v1/messages", messageRL(http.HandlerFunc(h.HandleProcessMessage)))
	mux.HandleFunc("POST /v1/messages/{id}/feedback", h.HandleMessageFeedback)
	mux.HandleFunc("POST /v1/decisions/{id}/choice", h.HandleHandoffChoice)
	mux.HandleFunc("GET /v1/conversations/{contact_id}", h.HandleGetConversation)
	mux.HandleFunc("GET /v1/conversations/{contact_id}/messages", h.HandleListMessages)

	// Guardrail administration.
	mux.HandleFunc("GET /v1/guardrails/policies", h.HandleListPolicies)
	mux.HandleFunc("PUT /v1/guardrails/policies/{type}", h.HandleUpdatePolicy)
	mux.HandleFunc("GET /v1/guardrails/stats", h.HandleGuardrailStats)
	mux.HandleFunc("POST /v1/guardrails/evaluate", h.HandleEvaluateDraft)

	// Handoff feed (no rate limit, long-lived connection).
	mux.HandleFunc("GET /v1/handoffs/stream", h.HandleHandoffStream)

	// MCP StreamableHTTP transport. The tenant middleware has already put the
	// tenant in the request context; the MCP tools read it from there.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// OpenAPI spec and health (no tenant, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → tenant → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = tenantMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(mux, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
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
