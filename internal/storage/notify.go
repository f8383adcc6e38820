package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aurum-labs/aurum/internal/model"
)

// ChannelHandoffs carries model.HandoffEvent payloads between instances.
const ChannelHandoffs = "aurum_handoffs"

// Postgres rejects NOTIFY payloads of 8000 bytes or more.
const maxNotifyPayload = 7999

// ErrNoNotify is returned by the LISTEN side when NOTIFY_URL is unset.
var ErrNoNotify = errors.New("storage: no notify connection")

// Listen subscribes the dedicated connection to channel.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return ErrNoNotify
	}
	if _, err := db.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until any listened channel fires or ctx ends.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	if db.notifyConn == nil {
		return "", "", ErrNoNotify
	}
	n, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return n.Channel, n.Payload, nil
}

// PublishHandoff announces an escalated conversation. It goes through the
// pool, so instances without a LISTEN connection can still publish.
func (db *DB) PublishHandoff(ctx context.Context, ev model.HandoffEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: marshal handoff: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("storage: handoff payload is %d bytes, limit %d", len(payload), maxNotifyPayload)
	}
	if _, err := db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", ChannelHandoffs, string(payload)); err != nil {
		return fmt.Errorf("storage: publish handoff: %w", err)
	}
	return nil
}
