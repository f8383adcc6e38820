package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
)

// InsertDecision appends a decision log row. ID and CreatedAt are filled in
// when zero.
func (db *DB) InsertDecision(ctx context.Context, d model.DecisionLog) (model.DecisionLog, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Evidence == nil {
		d.Evidence = map[string]any{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_logs (id, tenant_id, conversation_id, intent, confidence,
		 guardrail_triggered, evidence, fallback_used, handoff_offered, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.TenantID, d.ConversationID, d.Intent, d.Confidence,
		d.GuardrailTriggered, d.Evidence, d.FallbackUsed, d.HandoffOffered, d.CreatedAt,
	)
	if err != nil {
		return model.DecisionLog{}, fmt.Errorf("storage: insert decision: %w", err)
	}
	return d, nil
}

// GetDecision returns one decision log row or ErrNotFound.
func (db *DB) GetDecision(ctx context.Context, tenantID, id uuid.UUID) (model.DecisionLog, error) {
	var (
		d         model.DecisionLog
		intent    string
		triggered *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, conversation_id, intent, confidence, guardrail_triggered,
		 evidence, fallback_used, handoff_offered, user_choice, created_at
		 FROM decision_logs WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(
		&d.ID, &d.TenantID, &d.ConversationID, &intent, &d.Confidence, &triggered,
		&d.Evidence, &d.FallbackUsed, &d.HandoffOffered, &d.UserChoice, &d.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.DecisionLog{}, fmt.Errorf("storage: decision %s: %w", id, ErrNotFound)
		}
		return model.DecisionLog{}, fmt.Errorf("storage: get decision: %w", err)
	}
	d.Intent = model.Intent(intent)
	if triggered != nil {
		r := model.GuardrailReason(*triggered)
		d.GuardrailTriggered = &r
	}
	return d, nil
}

// SetDecisionUserChoice records the customer's answer to a handoff offer.
// The choice is write-once: a second call returns ErrAlreadyRecorded.
func (db *DB) SetDecisionUserChoice(ctx context.Context, tenantID, id uuid.UUID, choice string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE decision_logs SET user_choice = $3
		 WHERE tenant_id = $1 AND id = $2 AND user_choice IS NULL`,
		tenantID, id, choice,
	)
	if err != nil {
		return fmt.Errorf("storage: set user choice: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM decision_logs WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("storage: set user choice: %w", err)
	}
	if !exists {
		return fmt.Errorf("storage: decision %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("storage: decision %s user choice: %w", id, ErrAlreadyRecorded)
}

// DecisionCounts are the scalar totals of a stats window.
type DecisionCounts struct {
	Total          int
	Triggered      int
	FallbackUsed   int
	HandoffOffered int
}

// CountDecisions returns the totals for the tenant since the given time.
func (db *DB) CountDecisions(ctx context.Context, tenantID uuid.UUID, since time.Time) (DecisionCounts, error) {
	var c DecisionCounts
	err := db.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE guardrail_triggered IS NOT NULL),
		        count(*) FILTER (WHERE fallback_used),
		        count(*) FILTER (WHERE handoff_offered)
		 FROM decision_logs WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&c.Total, &c.Triggered, &c.FallbackUsed, &c.HandoffOffered)
	if err != nil {
		return DecisionCounts{}, fmt.Errorf("storage: count decisions: %w", err)
	}
	return c, nil
}

// TopTriggers returns the most frequent trigger reasons, most frequent first.
func (db *DB) TopTriggers(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]model.TriggerCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT guardrail_triggered, count(*) AS n
		 FROM decision_logs
		 WHERE tenant_id = $1 AND created_at >= $2 AND guardrail_triggered IS NOT NULL
		 GROUP BY guardrail_triggered
		 ORDER BY n DESC, guardrail_triggered
		 LIMIT $3`,
		tenantID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: top triggers: %w", err)
	}
	defer rows.Close()

	out := []model.TriggerCount{}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("storage: scan trigger: %w", err)
		}
		out = append(out, model.TriggerCount{Reason: model.GuardrailReason(reason), Count: n})
	}
	return out, rows.Err()
}

// ConfidenceHistogram buckets decision confidences using the same bounds as
// model.BucketIndex.
func (db *DB) ConfidenceHistogram(ctx context.Context, tenantID uuid.UUID, since time.Time) ([model.HistogramBuckets]model.BucketCount, error) {
	hist := model.NewHistogram()
	rows, err := db.pool.Query(ctx,
		`SELECT CASE
		          WHEN confidence < 0.3 THEN 0
		          WHEN confidence < 0.5 THEN 1
		          WHEN confidence < 0.7 THEN 2
		          WHEN confidence < 0.9 THEN 3
		          ELSE 4
		        END AS bucket,
		        count(*)
		 FROM decision_logs WHERE tenant_id = $1 AND created_at >= $2
		 GROUP BY bucket`,
		tenantID, since,
	)
	if err != nil {
		return hist, fmt.Errorf("storage: confidence histogram: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket, n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return hist, fmt.Errorf("storage: scan bucket: %w", err)
		}
		if bucket >= 0 && bucket < model.HistogramBuckets {
			hist[bucket].Count = n
		}
	}
	return hist, rows.Err()
}
