package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// KeyFunc derives the bucket key for a request. An empty key lets the
// request through unmetered.
type KeyFunc func(r *http.Request) string

// RequestIDFunc reads the request ID for the error envelope. It is injected
// so this package does not import the server.
type RequestIDFunc func(r *http.Request) string

// retryAfterer is implemented by limiters that know their refill interval.
type retryAfterer interface {
	RetryAfter() time.Duration
}

type limitHandler struct {
	next      http.Handler
	limiter   Limiter
	key       KeyFunc
	requestID RequestIDFunc
	logger    *slog.Logger
	rejected  metric.Int64Counter
	failures  metric.Int64Counter
}

// Middleware answers 429 with a Retry-After header once a customer runs out
// of tokens. A failing limiter is logged and the message goes through: a lost
// customer message costs more than an extra one.
func Middleware(limiter Limiter, keyFunc KeyFunc, reqIDFunc RequestIDFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	meter := telemetry.Meter("aurum/ratelimit")
	rejected, _ := meter.Int64Counter("aurum.ratelimit.rejected",
		metric.WithDescription("Customer messages refused by the rate limiter"))
	failures, _ := meter.Int64Counter("aurum.ratelimit.errors",
		metric.WithDescription("Limiter failures that let a message through"))

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return &limitHandler{
			next:      next,
			limiter:   limiter,
			key:       keyFunc,
			requestID: reqIDFunc,
			logger:    logger,
			rejected:  rejected,
			failures:  failures,
		}
	}
}

func (h *limitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := h.key(r)
	if key == "" {
		h.next.ServeHTTP(w, r)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), key)
	switch {
	case err != nil:
		h.failures.Add(r.Context(), 1)
		h.logger.Warn("ratelimit: limiter failed, allowing message", "key", key, "error", err)
	case !allowed:
		h.rejected.Add(r.Context(), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(h.limiter)))
		var requestID string
		if h.requestID != nil {
			requestID = h.requestID(r)
		}
		writeRateLimitError(w, requestID)
		return
	}
	h.next.ServeHTTP(w, r)
}

// retryAfterSeconds rounds the refill interval up to whole seconds, minimum 1.
func retryAfterSeconds(l Limiter) int {
	wait := time.Second
	if ra, ok := l.(retryAfterer); ok {
		wait = ra.RetryAfter()
	}
	return int(math.Max(1, math.Ceil(wait.Seconds())))
}

func writeRateLimitError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many messages, slow down",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}
