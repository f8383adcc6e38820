// Package decisionlog records guardrail evaluations and aggregates them for
// analytics.
package decisionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/storage"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// DefaultStatsWindow is used when Stats is called with a zero since.
const DefaultStatsWindow = 7 * 24 * time.Hour

// Store is the persistence the logger needs. *storage.DB satisfies it.
type Store interface {
	InsertDecision(ctx context.Context, d model.DecisionLog) (model.DecisionLog, error)
	SetDecisionUserChoice(ctx context.Context, tenantID, id uuid.UUID, choice string) error
	CountDecisions(ctx context.Context, tenantID uuid.UUID, since time.Time) (storage.DecisionCounts, error)
	TopTriggers(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]model.TriggerCount, error)
	ConfidenceHistogram(ctx context.Context, tenantID uuid.UUID, since time.Time) ([model.HistogramBuckets]model.BucketCount, error)
}

// Logger writes decision logs. Writes are best-effort.
type Logger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	written  metric.Int64Counter
	failures metric.Int64Counter
}

// New creates a Logger.
func New(store Store, logger *slog.Logger) *Logger {
	meter := telemetry.Meter("aurum/decisionlog")
	written, _ := meter.Int64Counter("aurum.decisionlog.written",
		metric.WithDescription("Decision logs persisted"),
	)
	failures, _ := meter.Int64Counter("aurum.decisionlog.failures",
		metric.WithDescription("Decision logs that could not be persisted"),
	)
	return &Logger{
		store:    store,
		logger:   logger,
		now:      time.Now,
		written:  written,
		failures: failures,
	}
}

// LogDecision persists d and returns its id, or nil if the write failed. A
// failure is logged and counted but never returned.
func (l *Logger) LogDecision(ctx context.Context, d model.DecisionLog) *uuid.UUID {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = l.now().UTC()
	}
	saved, err := l.store.InsertDecision(ctx, d)
	if err != nil {
		l.failures.Add(ctx, 1)
		l.logger.Error("decisionlog: write failed",
			"tenant_id", d.TenantID, "conversation_id", d.ConversationID, "intent", d.Intent, "error", err)
		return nil
	}
	l.written.Add(ctx, 1)
	id := saved.ID
	return &id
}

// RecordUserChoice stores the customer's answer to a handoff offer. A
// decision accepts one answer; later answers yield storage.ErrAlreadyRecorded.
func (l *Logger) RecordUserChoice(ctx context.Context, tenantID, decisionID uuid.UUID, choice string) error {
	switch choice {
	case model.ChoiceSpecialist, model.ChoiceAssistant:
	default:
		return fmt.Errorf("decisionlog: invalid choice %q", choice)
	}
	if err := l.store.SetDecisionUserChoice(ctx, tenantID, decisionID, choice); err != nil {
		return fmt.Errorf("decisionlog: record user choice: %w", err)
	}
	return nil
}

// Stats aggregates the tenant's decisions since the given time. The three
// aggregate queries run concurrently.
func (l *Logger) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (model.GuardrailStats, error) {
	if since.IsZero() {
		since = l.now().Add(-DefaultStatsWindow)
	}
	since = since.UTC()

	var (
		counts storage.DecisionCounts
		top    []model.TriggerCount
		hist   [model.HistogramBuckets]model.BucketCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = l.store.CountDecisions(gctx, tenantID, since)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = l.store.TopTriggers(gctx, tenantID, since, model.MaxTopTriggers)
		return err
	})
	g.Go(func() error {
		var err error
		hist, err = l.store.ConfidenceHistogram(gctx, tenantID, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.GuardrailStats{}, fmt.Errorf("decisionlog: stats: %w", err)
	}

	if top == nil {
		top = []model.TriggerCount{}
	}
	if len(top) > model.MaxTopTriggers {
		top = top[:model.MaxTopTriggers]
	}
	return model.GuardrailStats{
		Since:               since,
		Total:               counts.Total,
		Triggered:           counts.Triggered,
		FallbackUsed:        counts.FallbackUsed,
		HandoffOffered:      counts.HandoffOffered,
		TopTriggers:         top,
		ConfidenceHistogram: hist,
	}, nil
}
