package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aurum-labs/aurum/internal/model"
)

const conversationColumns = `id, tenant_id, contact_id, stage, profile, entities,
	interaction_count, last_interaction, timeline, created_at, updated_at`

// GetOrCreateConversation returns the conversation for (tenantID, contactID),
// creating it in the welcome stage on first contact. The insert is a no-op on
// conflict, so concurrent first messages converge on a single row.
func (db *DB) GetOrCreateConversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO conversations (id, tenant_id, contact_id, stage)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, contact_id) DO NOTHING`,
		uuid.New(), tenantID, contactID, model.StageWelcome,
	)
	if err != nil {
		return model.ConversationState{}, false, fmt.Errorf("storage: create conversation: %w", err)
	}
	state, err := db.GetConversation(ctx, tenantID, contactID)
	if err != nil {
		return model.ConversationState{}, false, err
	}
	return state, tag.RowsAffected() == 1, nil
}

// GetConversation returns the conversation for (tenantID, contactID) or ErrNotFound.
func (db *DB) GetConversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE tenant_id = $1 AND contact_id = $2`,
		tenantID, contactID,
	)
	state, err := db.scanConversation(row)
	if err != nil {
		if isNoRows(err) {
			return model.ConversationState{}, fmt.Errorf("storage: conversation %s: %w", contactID, ErrNotFound)
		}
		return model.ConversationState{}, fmt.Errorf("storage: get conversation: %w", err)
	}
	return state, nil
}

// UpdateConversation overwrites every mutable field of the conversation.
// Concurrent writers are last-writer-wins.
func (db *DB) UpdateConversation(ctx context.Context, s model.ConversationState) error {
	if !s.Stage.Valid() {
		return fmt.Errorf("storage: update conversation: invalid stage %q", s.Stage)
	}
	if s.Profile == nil {
		s.Profile = map[string]string{}
	}
	if s.Timeline == nil {
		s.Timeline = []model.TimelineEntry{}
	}

	return db.withRetry(ctx, "update_conversation", func(ctx context.Context) error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE conversations
			 SET stage = $3, profile = $4, entities = $5, interaction_count = $6,
			     last_interaction = $7, timeline = $8, updated_at = now()
			 WHERE tenant_id = $1 AND contact_id = $2`,
			s.TenantID, s.ContactID, s.Stage, s.Profile, s.Entities,
			s.InteractionCount, s.LastInteraction, s.Timeline,
		)
		if err != nil {
			return fmt.Errorf("storage: update conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("storage: conversation %s: %w", s.ContactID, ErrNotFound)
		}
		return nil
	})
}

func (db *DB) scanConversation(row pgx.Row) (model.ConversationState, error) {
	var (
		s     model.ConversationState
		stage string
	)
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.ContactID, &stage, &s.Profile, &s.Entities,
		&s.InteractionCount, &s.LastInteraction, &s.Timeline, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return model.ConversationState{}, err
	}
	parsed, err := model.ParseStage(stage)
	if err != nil {
		// The CHECK constraint makes this unreachable unless the enum shrinks
		// under existing rows.
		db.logger.Warn("storage: unknown stage, resetting to welcome",
			"tenant_id", s.TenantID, "contact_id", s.ContactID, "stage", stage)
		parsed = model.StageWelcome
	}
	s.Stage = parsed
	if s.Profile == nil {
		s.Profile = map[string]string{}
	}
	return s, nil
}
