// Package conversation owns per-contact conversation state: first-contact
// creation, full-state updates, and the per-turn bookkeeping that keeps the
// stage timeline bounded.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// DefaultTimelineCap bounds the timeline when no cap is configured.
const DefaultTimelineCap = 50

// profileTimelineDropped is the profile key counting timeline entries evicted
// by the cap.
const profileTimelineDropped = "timeline_dropped"

// Repository is the persistence the store needs. *storage.DB satisfies it.
type Repository interface {
	GetOrCreateConversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, bool, error)
	GetConversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error)
	UpdateConversation(ctx context.Context, s model.ConversationState) error
}

// Store reads and writes conversation state.
type Store struct {
	repo        Repository
	timelineCap int
	logger      *slog.Logger
	now         func() time.Time

	created metric.Int64Counter
}

// New creates a Store. A timelineCap <= 0 uses DefaultTimelineCap.
func New(repo Repository, timelineCap int, logger *slog.Logger) *Store {
	if timelineCap <= 0 {
		timelineCap = DefaultTimelineCap
	}
	meter := telemetry.Meter("aurum/conversation")
	created, _ := meter.Int64Counter("aurum.conversation.created",
		metric.WithDescription("Conversations created on first contact"),
	)
	return &Store{
		repo:        repo,
		timelineCap: timelineCap,
		logger:      logger,
		now:         time.Now,
		created:     created,
	}
}

// GetOrCreate returns the state for (tenantID, contactID), creating it at the
// welcome stage on first contact. Concurrent first messages from one contact
// resolve to the same row.
func (s *Store) GetOrCreate(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	if err := model.ValidateContactID(contactID); err != nil {
		return model.ConversationState{}, err
	}
	st, created, err := s.repo.GetOrCreateConversation(ctx, tenantID, contactID)
	if err != nil {
		return model.ConversationState{}, fmt.Errorf("conversation: get or create: %w", err)
	}
	if created {
		s.created.Add(ctx, 1)
		s.logger.Info("conversation: created", "tenant_id", tenantID, "contact_id", contactID)
	}
	return st, nil
}

// Get returns existing state. storage.ErrNotFound passes through wrapped.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	st, err := s.repo.GetConversation(ctx, tenantID, contactID)
	if err != nil {
		return model.ConversationState{}, fmt.Errorf("conversation: get: %w", err)
	}
	return st, nil
}

// Update overwrites every mutable field of st. Concurrent updates are
// last-writer-wins.
func (s *Store) Update(ctx context.Context, st model.ConversationState) error {
	if !st.Stage.Valid() {
		return fmt.Errorf("conversation: update: unknown stage %q", st.Stage)
	}
	if err := s.repo.UpdateConversation(ctx, st); err != nil {
		return fmt.Errorf("conversation: update: %w", err)
	}
	return nil
}

// Turn describes one processed message. Outcome is how the turn was
// answered; it is recorded on the timeline entry the turn opens.
type Turn struct {
	Intent    model.Intent
	NextStage model.Stage
	Entities  model.Entities
	Outcome   string
}

// ApplyTurn returns st advanced by one turn without persisting it. The
// interaction count grows by exactly one, the open timeline entry is closed,
// and a new entry is opened for the next stage.
func (s *Store) ApplyTurn(st model.ConversationState, t Turn) model.ConversationState {
	now := s.now().UTC()
	out := st
	out.Entities = st.Entities.Merge(t.Entities)
	out.InteractionCount = st.InteractionCount + 1
	out.LastInteraction = &now
	out.Stage = t.NextStage

	timeline := make([]model.TimelineEntry, len(st.Timeline), len(st.Timeline)+1)
	copy(timeline, st.Timeline)
	if n := len(timeline); n > 0 {
		last := &timeline[n-1]
		if last.DurationMS == 0 && !last.EnteredAt.IsZero() {
			last.DurationMS = now.Sub(last.EnteredAt).Milliseconds()
		}
	}
	timeline = append(timeline, model.TimelineEntry{
		Stage:     t.NextStage,
		Intent:    t.Intent,
		EnteredAt: now,
		Outcome:   t.Outcome,
	})

	profile := make(map[string]string, len(st.Profile)+1)
	for k, v := range st.Profile {
		profile[k] = v
	}
	if over := len(timeline) - s.timelineCap; over > 0 {
		timeline = timeline[over:]
		dropped, _ := strconv.Atoi(profile[profileTimelineDropped])
		profile[profileTimelineDropped] = strconv.Itoa(dropped + over)
	}
	out.Timeline = timeline
	out.Profile = profile
	return out
}

// RecordTurn applies t to st and persists the result.
func (s *Store) RecordTurn(ctx context.Context, st model.ConversationState, t Turn) (model.ConversationState, error) {
	next := s.ApplyTurn(st, t)
	if err := s.Update(ctx, next); err != nil {
		return st, err
	}
	return next, nil
}

// DroppedTimelineEntries reports how many timeline entries the cap evicted.
func DroppedTimelineEntries(st model.ConversationState) int {
	n, _ := strconv.Atoi(st.Profile[profileTimelineDropped])
	return n
}
