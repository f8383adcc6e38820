package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aurum-labs/aurum/internal/model"
)

// ListPolicies returns every stored policy for the tenant.
func (db *DB) ListPolicies(ctx context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, policy_type, enabled, threshold_value, fallback_message,
		 handoff_trigger, metadata, updated_at
		 FROM guardrail_policies WHERE tenant_id = $1
		 ORDER BY policy_type`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list policies: %w", err)
	}
	defer rows.Close()

	var out []model.GuardrailPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPolicy returns the tenant's policy of the given type or ErrNotFound.
func (db *DB) GetPolicy(ctx context.Context, tenantID uuid.UUID, pt model.PolicyType) (model.GuardrailPolicy, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, policy_type, enabled, threshold_value, fallback_message,
		 handoff_trigger, metadata, updated_at
		 FROM guardrail_policies WHERE tenant_id = $1 AND policy_type = $2`,
		tenantID, pt,
	)
	p, err := scanPolicy(row)
	if err != nil {
		if isNoRows(err) {
			return model.GuardrailPolicy{}, fmt.Errorf("storage: policy %s: %w", pt, ErrNotFound)
		}
		return model.GuardrailPolicy{}, fmt.Errorf("storage: get policy: %w", err)
	}
	return p, nil
}

// UpsertPolicy stores p as the tenant's policy for its type and returns the
// stored row.
func (db *DB) UpsertPolicy(ctx context.Context, p model.GuardrailPolicy) (model.GuardrailPolicy, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO guardrail_policies (id, tenant_id, policy_type, enabled, threshold_value,
		 fallback_message, handoff_trigger, metadata, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (tenant_id, policy_type) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   threshold_value = EXCLUDED.threshold_value,
		   fallback_message = EXCLUDED.fallback_message,
		   handoff_trigger = EXCLUDED.handoff_trigger,
		   metadata = EXCLUDED.metadata,
		   updated_at = now()
		 RETURNING id, tenant_id, policy_type, enabled, threshold_value, fallback_message,
		 handoff_trigger, metadata, updated_at`,
		p.ID, p.TenantID, p.PolicyType, p.Enabled, p.ThresholdValue,
		p.FallbackMessage, p.HandoffTrigger, p.Metadata,
	)
	stored, err := scanPolicy(row)
	if err != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("storage: upsert policy: %w", err)
	}
	return stored, nil
}

func scanPolicy(row pgx.Row) (model.GuardrailPolicy, error) {
	var (
		p  model.GuardrailPolicy
		pt string
	)
	if err := row.Scan(
		&p.ID, &p.TenantID, &pt, &p.Enabled, &p.ThresholdValue, &p.FallbackMessage,
		&p.HandoffTrigger, &p.Metadata, &p.UpdatedAt,
	); err != nil {
		return model.GuardrailPolicy{}, err
	}
	p.PolicyType = model.PolicyType(pt)
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	return p, nil
}
