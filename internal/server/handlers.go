package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/chat"
)

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers serves the chat, guardrail and operational routes of one
// process. Tenancy arrives through the request context.
type Handlers struct {
	chat                *chat.Service
	db                  Pinger
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps lists what Handlers needs. Broker is nil when NOTIFY_URL is
// unset and OpenAPISpec may be empty.
type HandlersDeps struct {
	Chat                *chat.Service
	DB                  Pinger
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers records the start time used for uptime reporting.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		chat:                d.Chat,
		db:                  d.DB,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	if h.broker != nil {
		resp.SSEBroker = "stopped"
		if h.broker.Running() {
			resp.SSEBroker = "running"
		}
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec handles GET /openapi.yaml.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// pathUUID reads a UUID path segment such as {id}.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q is not a UUID", name, raw)
	}
	return id, nil
}

// queryLimit reads ?limit= and clamps it to [1, ceiling]. Absent or malformed
// values give def.
func queryLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	switch {
	case err != nil:
		return def
	case n < 1:
		return 1
	case n > ceiling:
		return ceiling
	}
	return n
}

// queryTime reads an optional RFC3339 query parameter.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: want RFC3339 such as 2026-01-01T00:00:00Z", key)
	}
	return &t, nil
}
