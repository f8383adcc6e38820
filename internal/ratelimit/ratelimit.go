// Package ratelimit is admission control for inbound customer messages.
//
// The in-memory token bucket (MemoryLimiter) is enough for a single
// instance. A shared store can back the Limiter interface when several
// instances serve the same tenants.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is opaque;
	// callers build it with Key. An error means the limiter itself failed and
	// callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// Key is the bucket key for one customer of one tenant. Customers of
// different tenants never share a bucket.
func Key(tenantID, contactID string) string {
	return "tenant:" + tenantID + ":contact:" + contactID
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
