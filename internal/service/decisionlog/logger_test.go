package decisionlog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/storage"
)

// memStore aggregates in memory with the same semantics as the SQL queries.
type memStore struct {
	mu        sync.Mutex
	rows      []model.DecisionLog
	insertErr error
	statsErr  error
}

func (m *memStore) InsertDecision(_ context.Context, d model.DecisionLog) (model.DecisionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return model.DecisionLog{}, m.insertErr
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.rows = append(m.rows, d)
	return d, nil
}

func (m *memStore) SetDecisionUserChoice(_ context.Context, tenantID, id uuid.UUID, choice string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].TenantID == tenantID && m.rows[i].ID == id {
			if m.rows[i].UserChoice != nil {
				return storage.ErrAlreadyRecorded
			}
			m.rows[i].UserChoice = &choice
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) window(tenantID uuid.UUID, since time.Time) []model.DecisionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DecisionLog
	for _, d := range m.rows {
		if d.TenantID == tenantID && !d.CreatedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out
}

func (m *memStore) CountDecisions(_ context.Context, tenantID uuid.UUID, since time.Time) (storage.DecisionCounts, error) {
	if m.statsErr != nil {
		return storage.DecisionCounts{}, m.statsErr
	}
	var c storage.DecisionCounts
	for _, d := range m.window(tenantID, since) {
		c.Total++
		if d.GuardrailTriggered != nil {
			c.Triggered++
		}
		if d.FallbackUsed {
			c.FallbackUsed++
		}
		if d.HandoffOffered {
			c.HandoffOffered++
		}
	}
	return c, nil
}

func (m *memStore) TopTriggers(_ context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]model.TriggerCount, error) {
	counts := map[model.GuardrailReason]int{}
	for _, d := range m.window(tenantID, since) {
		if d.GuardrailTriggered != nil {
			counts[*d.GuardrailTriggered]++
		}
	}
	var out []model.TriggerCount
	for r, n := range counts {
		out = append(out, model.TriggerCount{Reason: r, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ConfidenceHistogram(_ context.Context, tenantID uuid.UUID, since time.Time) ([model.HistogramBuckets]model.BucketCount, error) {
	hist := model.NewHistogram()
	for _, d := range m.window(tenantID, since) {
		hist[model.BucketIndex(d.Confidence)].Count++
	}
	return hist, nil
}

func reason(r model.GuardrailReason) *model.GuardrailReason { return &r }

func newTestLogger(store Store) *Logger {
	return New(store, slog.New(slog.DiscardHandler))
}

func TestLogDecisionReturnsID(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(store)

	id := l.LogDecision(context.Background(), model.DecisionLog{TenantID: uuid.New(), Intent: model.IntentGreeting, Confidence: 0.85})
	require.NotNil(t, id)
	require.Len(t, store.rows, 1)
	assert.Equal(t, *id, store.rows[0].ID)
	assert.False(t, store.rows[0].CreatedAt.IsZero())
}

func TestLogDecisionSwallowsErrors(t *testing.T) {
	l := newTestLogger(&memStore{insertErr: errors.New("disk full")})

	var id *uuid.UUID
	assert.NotPanics(t, func() {
		id = l.LogDecision(context.Background(), model.DecisionLog{TenantID: uuid.New()})
	})
	assert.Nil(t, id)
}

func TestRecordUserChoice(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(store)
	tenant := uuid.New()
	id := l.LogDecision(context.Background(), model.DecisionLog{TenantID: tenant, HandoffOffered: true})
	require.NotNil(t, id)

	require.NoError(t, l.RecordUserChoice(context.Background(), tenant, *id, model.ChoiceSpecialist))
	assert.Equal(t, model.ChoiceSpecialist, *store.rows[0].UserChoice)

	err := l.RecordUserChoice(context.Background(), tenant, *id, model.ChoiceAssistant)
	assert.ErrorIs(t, err, storage.ErrAlreadyRecorded)

	err = l.RecordUserChoice(context.Background(), uuid.New(), *id, model.ChoiceAssistant)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = l.RecordUserChoice(context.Background(), tenant, *id, "maybe")
	assert.ErrorContains(t, err, "invalid choice")
}

func TestStatsAggregates(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(store)
	tenant := uuid.New()
	now := time.Now().UTC()

	rows := []model.DecisionLog{
		{Confidence: 0.95},
		{Confidence: 0.2, GuardrailTriggered: reason(model.ReasonLowConfidence), FallbackUsed: true},
		{Confidence: 0.4, GuardrailTriggered: reason(model.ReasonLowConfidence), FallbackUsed: true},
		{Confidence: 0.9, GuardrailTriggered: reason(model.ReasonPriceMissing), FallbackUsed: true, HandoffOffered: true},
		{Confidence: 0.75},
	}
	for _, r := range rows {
		r.TenantID = tenant
		r.CreatedAt = now
		l.LogDecision(context.Background(), r)
	}
	l.LogDecision(context.Background(), model.DecisionLog{TenantID: uuid.New(), CreatedAt: now, Confidence: 0.1})
	l.LogDecision(context.Background(), model.DecisionLog{TenantID: tenant, CreatedAt: now.Add(-48 * time.Hour), Confidence: 0.1})

	stats, err := l.Stats(context.Background(), tenant, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Triggered)
	assert.Equal(t, 3, stats.FallbackUsed)
	assert.Equal(t, 1, stats.HandoffOffered)
	require.Len(t, stats.TopTriggers, 2)
	assert.Equal(t, model.TriggerCount{Reason: model.ReasonLowConfidence, Count: 2}, stats.TopTriggers[0])

	var counts []int
	for _, b := range stats.ConfidenceHistogram {
		counts = append(counts, b.Count)
	}
	assert.Equal(t, []int{1, 1, 0, 1, 2}, counts)
	assert.Equal(t, "0.9-1.0", stats.ConfidenceHistogram[4].Label)
}

func TestStatsEmptyWindowDefaults(t *testing.T) {
	l := newTestLogger(&memStore{})
	stats, err := l.Stats(context.Background(), uuid.New(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.TopTriggers)
	assert.WithinDuration(t, time.Now().Add(-DefaultStatsWindow), stats.Since, time.Minute)
}

func TestStatsPropagatesQueryErrors(t *testing.T) {
	l := newTestLogger(&memStore{statsErr: errors.New("timeout")})
	_, err := l.Stats(context.Background(), uuid.New(), time.Now().Add(-time.Hour))
	assert.ErrorContains(t, err, "timeout")
}
