package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
)

// InsertMessage persists one chat turn.
func (db *DB) InsertMessage(ctx context.Context, m model.ChatMessage) (model.ChatMessage, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, tenant_id, conversation_id, content, sender, status,
		 intent, confidence, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.TenantID, m.ConversationID, m.Content, m.Sender, m.Status,
		m.Intent, m.Confidence, m.Metadata, m.Timestamp,
	)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("storage: insert message: %w", err)
	}
	return m, nil
}

// SetMessageFeedback attaches reviewer feedback to a message. Feedback is the
// only field of a sent message that may change.
func (db *DB) SetMessageFeedback(ctx context.Context, tenantID, id uuid.UUID, feedback string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE chat_messages SET feedback = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, feedback,
	)
	if err != nil {
		return fmt.Errorf("storage: set feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: message %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMessages returns up to limit messages of a conversation, oldest first,
// created strictly before the cursor time when one is given.
func (db *DB) ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, before *time.Time, limit int) ([]model.ChatMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, conversation_id, content, sender, status, intent,
		 confidence, metadata, feedback, created_at
		 FROM (
		   SELECT * FROM chat_messages
		   WHERE tenant_id = $1 AND conversation_id = $2
		     AND ($3::timestamptz IS NULL OR created_at < $3)
		   ORDER BY created_at DESC, id DESC
		   LIMIT $4
		 ) recent
		 ORDER BY created_at, id`,
		tenantID, conversationID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	out := []model.ChatMessage{}
	for rows.Next() {
		var (
			m      model.ChatMessage
			sender string
			intent *string
		)
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.ConversationID, &m.Content, &sender, &m.Status, &intent,
			&m.Confidence, &m.Metadata, &m.Feedback, &m.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		m.Sender = model.Sender(sender)
		if intent != nil {
			in := model.Intent(*intent)
			m.Intent = &in
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
