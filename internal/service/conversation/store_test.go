package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/storage"
)

type memRepo struct {
	mu     sync.Mutex
	rows   map[string]model.ConversationState
	upErr  error
	writes int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]model.ConversationState{}}
}

func key(tenantID uuid.UUID, contactID string) string { return tenantID.String() + "/" + contactID }

func (r *memRepo) GetOrCreateConversation(_ context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(tenantID, contactID)
	if st, ok := r.rows[k]; ok {
		return st, false, nil
	}
	st := model.ConversationState{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ContactID: contactID,
		Stage:     model.StageWelcome,
		Profile:   map[string]string{},
	}
	r.rows[k] = st
	return st, true, nil
}

func (r *memRepo) GetConversation(_ context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rows[key(tenantID, contactID)]
	if !ok {
		return model.ConversationState{}, storage.ErrNotFound
	}
	return st, nil
}

func (r *memRepo) UpdateConversation(_ context.Context, s model.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upErr != nil {
		return r.upErr
	}
	r.writes++
	r.rows[key(s.TenantID, s.ContactID)] = s
	return nil
}

func newTestStore(repo Repository, timelineCap int) *Store {
	s := New(repo, timelineCap, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestGetOrCreateFirstContact(t *testing.T) {
	s := newTestStore(newMemRepo(), 0)
	tenant := uuid.New()

	st, err := s.GetOrCreate(context.Background(), tenant, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, model.StageWelcome, st.Stage)
	assert.Zero(t, st.InteractionCount)
	assert.Empty(t, st.Timeline)

	again, err := s.GetOrCreate(context.Background(), tenant, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)
}

func TestGetOrCreateRejectsBlankContact(t *testing.T) {
	s := newTestStore(newMemRepo(), 0)
	_, err := s.GetOrCreate(context.Background(), uuid.New(), "  ")
	assert.ErrorContains(t, err, "contact_id is required")
}

func TestGetMissingWrapsNotFound(t *testing.T) {
	s := newTestStore(newMemRepo(), 0)
	_, err := s.Get(context.Background(), uuid.New(), "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRejectsUnknownStage(t *testing.T) {
	repo := newMemRepo()
	s := newTestStore(repo, 0)
	err := s.Update(context.Background(), model.ConversationState{Stage: "checkout"})
	assert.ErrorContains(t, err, "unknown stage")
	assert.Zero(t, repo.writes)
}

func TestApplyTurnIncrementsAndClosesTimeline(t *testing.T) {
	s := newTestStore(newMemRepo(), 0)
	entered := time.Date(2026, 5, 1, 11, 59, 30, 0, time.UTC)
	st := model.ConversationState{
		Stage:            model.StageDiscovery,
		InteractionCount: 4,
		Timeline:         []model.TimelineEntry{{Stage: model.StageDiscovery, Intent: model.IntentGreeting, EnteredAt: entered}},
		Entities:         model.Entities{Objections: 1},
	}

	next := s.ApplyTurn(st, Turn{
		Intent:    model.IntentPriceObjection,
		NextStage: model.StageObjectionHandling,
		Entities:  model.Entities{Objections: 1, JewelryType: "anel"},
		Outcome:   "advanced",
	})

	assert.Equal(t, 5, next.InteractionCount)
	assert.Equal(t, model.StageObjectionHandling, next.Stage)
	assert.Equal(t, 2, next.Entities.Objections)
	assert.Equal(t, "anel", next.Entities.JewelryType)
	require.NotNil(t, next.LastInteraction)
	require.Len(t, next.Timeline, 2)
	assert.EqualValues(t, 30_000, next.Timeline[0].DurationMS)
	assert.Empty(t, next.Timeline[0].Outcome)
	assert.Equal(t, model.StageObjectionHandling, next.Timeline[1].Stage)
	assert.Equal(t, "advanced", next.Timeline[1].Outcome)
	assert.Equal(t, model.IntentPriceObjection, next.Timeline[1].Intent)

	// The input is left untouched.
	assert.Zero(t, st.Timeline[0].DurationMS)
	assert.Equal(t, 4, st.InteractionCount)
}

func TestApplyTurnCapsTimeline(t *testing.T) {
	s := newTestStore(newMemRepo(), 3)
	st := model.ConversationState{Stage: model.StageWelcome, Profile: map[string]string{"name": "Ana"}}

	for range 5 {
		st = s.ApplyTurn(st, Turn{Intent: model.IntentPriceInquiry, NextStage: model.StagePriceDiscussion})
	}
	assert.Len(t, st.Timeline, 3)
	assert.Equal(t, 5, st.InteractionCount)
	assert.Equal(t, 2, DroppedTimelineEntries(st))
	assert.Equal(t, "Ana", st.ProfileName())
}

func TestRecordTurnPersists(t *testing.T) {
	repo := newMemRepo()
	s := newTestStore(repo, 0)
	tenant := uuid.New()
	st, err := s.GetOrCreate(context.Background(), tenant, "c1")
	require.NoError(t, err)

	next, err := s.RecordTurn(context.Background(), st, Turn{Intent: model.IntentGreeting, NextStage: model.StageDiscovery})
	require.NoError(t, err)

	stored, err := s.Get(context.Background(), tenant, "c1")
	require.NoError(t, err)
	assert.Equal(t, next.Stage, stored.Stage)
	assert.Equal(t, 1, stored.InteractionCount)
}

func TestRecordTurnReturnsOriginalOnError(t *testing.T) {
	repo := newMemRepo()
	repo.upErr = errors.New("connection refused")
	s := newTestStore(repo, 0)
	st := model.ConversationState{Stage: model.StageWelcome, InteractionCount: 2}

	got, err := s.RecordTurn(context.Background(), st, Turn{Intent: model.IntentGreeting, NextStage: model.StageDiscovery})
	require.Error(t, err)
	assert.Equal(t, st.InteractionCount, got.InteractionCount)
	assert.Equal(t, model.StageWelcome, got.Stage)
}
