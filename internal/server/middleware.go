// Package server implements the HTTP API server for Aurum.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/ratelimit"
	"github.com/aurum-labs/aurum/internal/service/chat"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
	"github.com/aurum-labs/aurum/internal/storage"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// TenantHeader carries the tenant of every /v1 and /mcp request.
const TenantHeader = "X-Tenant-ID"

// RequestIDFromRequest extracts the request ID assigned by requestIDMiddleware.
func RequestIDFromRequest(r *http.Request) string {
	return ctxutil.RequestIDFromContext(r.Context())
}

// requestIDMiddleware assigns a unique request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctxutil.WithRequestID(r.Context(), reqID)))
	})
}

// securityHeadersMiddleware sets conservative response headers. The API only
// serves JSON, YAML and event streams.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// tenantMiddleware resolves X-Tenant-ID for API and MCP routes. Requests
// without a valid tenant never reach a handler.
func tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresTenant(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(r.Header.Get(TenantHeader))
		if raw == "" {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, TenantHeader+" header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, TenantHeader+" must be a UUID")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxutil.WithTenantID(r.Context(), tenantID)))
	})
}

func requiresTenant(path string) bool {
	return strings.HasPrefix(path, "/v1/") || path == "/mcp" || strings.HasPrefix(path, "/mcp/")
}

// contactKeyFunc keys message rate limits by tenant and contact. The body is
// peeked for contact_id and restored for the handler. A body that cannot be
// read falls back to a tenant-wide key; the handler rejects it anyway.
func contactKeyFunc(maxBytes int64) ratelimit.KeyFunc {
	return func(r *http.Request) string {
		tenantID := ctxutil.TenantIDFromContext(r.Context())
		if tenantID == uuid.Nil {
			return ""
		}
		if r.Body == nil {
			return ratelimit.Key(tenantID.String(), "")
		}
		limit := maxBytes
		if limit <= 0 {
			limit = 1 << 20
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ratelimit.Key(tenantID.String(), "")
		}
		var peek struct {
			ContactID string `json:"contact_id"`
		}
		_ = json.Unmarshal(body, &peek)
		return ratelimit.Key(tenantID.String(), peek.ContactID)
	}
}

// loggingMiddleware logs each request with structured fields.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromRequest(r),
		}
		if tid := traceIDFromRequest(r); tid != "" {
			attrs = append(attrs, "trace_id", tid)
		}
		if tenant := r.Header.Get(TenantHeader); tenant != "" {
			attrs = append(attrs, "tenant_id", tenant)
		}

		level := slog.LevelInfo
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush lets SSE handlers stream through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// tracingMiddleware creates an OTEL span for each HTTP request
// and records request count and duration metrics.
func tracingMiddleware(routes *http.ServeMux, next http.Handler) http.Handler {
	tracer := telemetry.Tracer("aurum/http")
	meter := telemetry.Meter("aurum/http")
	requests, _ := meter.Int64Counter("http.server.request_count")
	duration, _ := meter.Float64Histogram("http.server.duration", otelmetric.WithUnit("ms"))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Paths carry contact IDs, which are phone numbers. Spans and metrics
		// use the matched route pattern instead.
		_, route := routes.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(r.Context(), route,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.request_id", RequestIDFromRequest(r)),
			),
		)
		defer span.End()
		if tenant := r.Header.Get(TenantHeader); tenant != "" {
			span.SetAttributes(telemetry.TenantKey.String(tenant))
		}

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", wrapped.statusCode))

		attrs := otelmetric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.status_code", strconv.Itoa(wrapped.statusCode)),
		)
		requests.Add(ctx, 1, attrs)
		duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	})
}

func traceIDFromRequest(r *http.Request) string {
	sc := trace.SpanContextFromContext(r.Context())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// recoveryMiddleware turns handler panics into 500 responses.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("http handler panic",
					"panic", fmt.Sprint(rec),
					"path", r.URL.Path,
					"request_id", RequestIDFromRequest(r),
					"stack", string(debug.Stack()))
				writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: responseMeta(r),
	})
}

// writeList writes a list response with paging hints.
func writeList(w http.ResponseWriter, r *http.Request, data any, limit int, hasMore bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(model.ListResponse{
		Data:    data,
		HasMore: hasMore,
		Limit:   limit,
		Meta:    responseMeta(r),
	})
}

// writeError writes a JSON error response with the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message},
		Meta:  responseMeta(r),
	})
}

func responseMeta(r *http.Request) model.ResponseMeta {
	return model.ResponseMeta{
		RequestID: RequestIDFromRequest(r),
		Timestamp: time.Now().UTC(),
	}
}

// decodeJSON decodes a size-limited JSON request body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// handleDecodeError maps a decodeJSON failure to a 400 or 413 response.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		return
	}
	writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
}

// writeServiceError maps service and storage errors to API errors. Unknown
// errors are logged and reported as 500 without leaking their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, guardrails.ErrInvalidPolicy):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, msg+": not found")
	case errors.Is(err, storage.ErrAlreadyRecorded):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, msg+": already recorded")
	default:
		logger.Error(msg, "error", err, "request_id", RequestIDFromRequest(r))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
	}
}
