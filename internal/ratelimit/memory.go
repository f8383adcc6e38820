package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// bucket is the token state of one key.
type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// MemoryLimiter is a token bucket per key held in process memory.
//
// Every key refills at rate tokens per second up to burst tokens. Keys idle
// for longer than the stale threshold are evicted by a background goroutine
// so contacts that stopped writing do not accumulate.
type MemoryLimiter struct {
	rate  float64
	burst float64
	stale time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

const (
	defaultStaleThreshold = 10 * time.Minute
	evictInterval         = time.Minute
)

// NewMemoryLimiter creates a limiter allowing rate messages per second per
// key with bursts of up to burst messages. Call Close to stop the eviction
// goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		stale:   defaultStaleThreshold,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Allow takes one token from key's bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		m.buckets[key] = &bucket{tokens: m.burst - 1, lastAccess: now}
		return true, nil
	}

	b.tokens = math.Min(m.burst, b.tokens+now.Sub(b.lastAccess).Seconds()*m.rate)
	b.lastAccess = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// RetryAfter is how long a rejected key waits for its next token.
func (m *MemoryLimiter) RetryAfter() time.Duration {
	if m.rate <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / m.rate)
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.stale)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}

func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
