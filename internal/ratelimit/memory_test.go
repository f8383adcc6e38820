package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, rate float64, burst int) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() { _ = m.Close() })
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m.now = clock.now
	return m, clock
}

func allowN(t *testing.T, m *MemoryLimiter, key string, n int) int {
	t.Helper()
	allowed := 0
	for range n {
		ok, err := m.Allow(context.Background(), key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	return allowed
}

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 3)
	assert.Equal(t, 3, allowN(t, m, "k", 5))
}

func TestMemoryLimiterRefills(t *testing.T) {
	m, clock := newTestLimiter(t, 2, 2)
	assert.Equal(t, 2, allowN(t, m, "k", 3))

	clock.advance(500 * time.Millisecond)
	assert.Equal(t, 1, allowN(t, m, "k", 2))

	// Refill never exceeds the burst.
	clock.advance(time.Hour)
	assert.Equal(t, 2, allowN(t, m, "k", 5))
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	assert.Equal(t, 1, allowN(t, m, Key("t1", "c1"), 2))
	assert.Equal(t, 1, allowN(t, m, Key("t1", "c2"), 2))
	assert.Equal(t, 1, allowN(t, m, Key("t2", "c1"), 2))
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 50)
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(context.Background(), "k"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, allowed.Load())
}

func TestMemoryLimiterEvictsStaleKeys(t *testing.T) {
	m, clock := newTestLimiter(t, 1, 1)
	allowN(t, m, "old", 1)
	clock.advance(defaultStaleThreshold + time.Second)
	allowN(t, m, "new", 1)

	m.evictStale()
	assert.Equal(t, 1, m.size())
}

func TestMemoryLimiterCloseIsIdempotent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestRetryAfter(t *testing.T) {
	m, _ := newTestLimiter(t, 0.5, 1)
	assert.Equal(t, 2*time.Second, m.RetryAfter())
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("store down") }
func (failingLimiter) Close() error                                { return nil }

func TestMiddleware(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 2)
	logger := slog.New(slog.DiscardHandler)
	key := func(r *http.Request) string { return r.Header.Get("X-Key") }
	handler := Middleware(m, key, func(*http.Request) string { return "req-1" }, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	do := func(k string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
		req.Header.Set("X-Key", k)
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("a").Code)
	assert.Equal(t, http.StatusOK, do("a").Code)

	rec := do("a")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-1", body.Meta.RequestID)

	assert.Equal(t, http.StatusOK, do("b").Code, "other keys keep their own bucket")
	assert.Equal(t, http.StatusOK, do("").Code, "empty key is not limited")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	handler := Middleware(failingLimiter{}, func(*http.Request) string { return "k" }, nil, slog.New(slog.DiscardHandler))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNoopLimiterAllows(t *testing.T) {
	ok, err := NoopLimiter{}.Allow(context.Background(), "k")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	slow, _ := newTestLimiter(t, 0.4, 1)
	assert.Equal(t, 3, retryAfterSeconds(slow))
	fast, _ := newTestLimiter(t, 50, 1)
	assert.Equal(t, 1, retryAfterSeconds(fast))
	assert.Equal(t, 1, retryAfterSeconds(failingLimiter{}))
}

func TestMiddlewareNilLimiterPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	handler := Middleware(nil, func(*http.Request) string { return "k" }, nil, slog.New(slog.DiscardHandler))(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
