// Package ctxutil provides shared context key accessors.
//
// server and mcp both need the tenant resolved by the HTTP layer. Both import
// ctxutil instead of each other.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyTenantID  contextKey = "tenant_id"
	keyRequestID contextKey = "request_id"
)

// WithTenantID returns a new context carrying the tenant id.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// TenantIDFromContext extracts the tenant id from the context.
func TenantIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyTenantID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithRequestID returns a new context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
