package server

import (
	"context"

	"github.com/aurum-labs/aurum/internal/model"
)

// HandoffHook receives escalated conversations fanned out by the Broker.
// Defined here (not in the root aurum package) to avoid a circular import:
// internal/server → aurum → internal/server would be a cycle.
// The root aurum package adapts its public hook type into HandoffHook.
//
// Hooks are called asynchronously in goroutines with a bounded context.
// Failures are logged and never affect the customer conversation.
type HandoffHook interface {
	OnHandoff(ctx context.Context, ev model.HandoffEvent) error
}
