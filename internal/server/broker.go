package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/storage"
)

// Notifier is the LISTEN side of storage.DB.
type Notifier interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (channel, payload string, err error)
}

// Broker fans handoff notifications out to per-tenant SSE subscribers and to
// registered HandoffHooks. It runs a background goroutine that calls
// WaitForNotification in a loop.
type Broker struct {
	db          Notifier
	logger      *slog.Logger
	hooks       []HandoffHook
	hookTimeout time.Duration

	mu          sync.RWMutex
	subscribers map[chan []byte]uuid.UUID
	running     bool
}

// NewBroker creates a new handoff broker. Call Start to begin listening.
func NewBroker(db Notifier, hooks []HandoffHook, hookTimeout time.Duration, logger *slog.Logger) *Broker {
	if hookTimeout <= 0 {
		hookTimeout = 10 * time.Second
	}
	return &Broker{
		db:          db,
		logger:      logger,
		hooks:       hooks,
		hookTimeout: hookTimeout,
		subscribers: make(map[chan []byte]uuid.UUID),
	}
}

// Start begins listening on the handoff channel.
// It blocks, so call it in a goroutine. Returns when ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	if err := b.db.Listen(ctx, storage.ChannelHandoffs); err != nil {
		b.logger.Error("broker: listen handoffs", "error", err)
		return
	}
	b.setRunning(true)
	defer b.setRunning(false)

	b.logger.Info("broker: listening for notifications", "channel", storage.ChannelHandoffs)

	for {
		channel, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // Shutting down.
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if channel != storage.ChannelHandoffs {
			continue
		}
		b.dispatch(ctx, payload)
	}
}

// Running reports whether the listen loop is active.
func (b *Broker) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Broker) setRunning(v bool) {
	b.mu.Lock()
	b.running = v
	b.mu.Unlock()
}

// dispatch decodes one payload, broadcasts it to the event's tenant and
// fires the hooks.
func (b *Broker) dispatch(ctx context.Context, payload string) {
	var ev model.HandoffEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.logger.Warn("broker: malformed handoff payload", "error", err)
		return
	}
	b.broadcast(ev.TenantID, formatSSE(storage.ChannelHandoffs, payload))
	b.fireHooks(ctx, ev)
}

func (b *Broker) fireHooks(ctx context.Context, ev model.HandoffEvent) {
	for _, h := range b.hooks {
		go func(h HandoffHook) {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.hookTimeout)
			defer cancel()
			if err := h.OnHandoff(hctx, ev); err != nil {
				b.logger.Warn("broker: handoff hook failed",
					"tenant_id", ev.TenantID, "conversation_id", ev.ConversationID, "error", err)
			}
		}(h)
	}
}

// Subscribe returns a channel that receives SSE-formatted handoff events for
// one tenant. The caller must call Unsubscribe when done.
func (b *Broker) Subscribe(tenantID uuid.UUID) chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	b.subscribers[ch] = tenantID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast sends an event to the tenant's subscribers. Slow subscribers
// with a full buffer miss the event so one client cannot block the others.
func (b *Broker) broadcast(tenantID uuid.UUID, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, tenant := range b.subscribers {
		if tenant != tenantID {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
