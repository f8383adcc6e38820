package guardrails

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
)

// ErrInvalidPolicy is returned for policy updates that are well-formed but
// not allowed.
var ErrInvalidPolicy = errors.New("invalid policy")

// PolicyStore persists tenant policies. *storage.DB satisfies it.
type PolicyStore interface {
	ListPolicies(ctx context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error)
	UpsertPolicy(ctx context.Context, p model.GuardrailPolicy) (model.GuardrailPolicy, error)
}

// Policies resolves a tenant's effective policies: stored rows overlaid on
// built-in defaults, served from a short-TTL cache.
type Policies struct {
	store     PolicyStore
	cache     *PolicyCache
	threshold float64
	logger    *slog.Logger
}

// NewPolicies creates a policy resolver. cache may be nil to disable caching.
func NewPolicies(store PolicyStore, cache *PolicyCache, defaultThreshold float64, logger *slog.Logger) *Policies {
	if defaultThreshold <= 0 {
		defaultThreshold = model.DefaultConfidenceThreshold
	}
	return &Policies{store: store, cache: cache, threshold: defaultThreshold, logger: logger}
}

// Effective returns every policy type for the tenant, defaults filled in.
func (p *Policies) Effective(ctx context.Context, tenantID uuid.UUID) (PolicySet, error) {
	if p.cache != nil {
		if set, ok := p.cache.Get(tenantID); ok {
			return set, nil
		}
	}
	stored, err := p.store.ListPolicies(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("guardrails: load policies: %w", err)
	}
	set := make(PolicySet, len(model.PolicyTypes))
	for _, pt := range model.PolicyTypes {
		set[pt] = model.DefaultPolicy(tenantID, pt, p.threshold)
	}
	for _, sp := range stored {
		set[sp.PolicyType] = sp
	}
	if p.cache != nil {
		p.cache.Set(tenantID, set)
	}
	return set, nil
}

// List returns the tenant's effective policies in a stable order.
func (p *Policies) List(ctx context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error) {
	set, err := p.Effective(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]model.GuardrailPolicy, 0, len(model.PolicyTypes))
	for _, pt := range model.PolicyTypes {
		out = append(out, set[pt])
	}
	return out, nil
}

// Update applies req to the tenant's policy of type pt, persists it, and
// invalidates the cached set so the next evaluation sees the change.
func (p *Policies) Update(ctx context.Context, tenantID uuid.UUID, pt model.PolicyType, req model.UpdatePolicyRequest) (model.GuardrailPolicy, error) {
	if err := req.Validate(); err != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if pt == model.PolicySensitiveInfo && req.Enabled != nil && !*req.Enabled {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: the sensitive_info policy cannot be disabled", ErrInvalidPolicy)
	}
	if pt == model.PolicySensitiveInfo && req.FallbackMessage != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: the sensitive_info fallback message is fixed", ErrInvalidPolicy)
	}

	set, err := p.Effective(ctx, tenantID)
	if err != nil {
		return model.GuardrailPolicy{}, err
	}
	current, ok := set[pt]
	if !ok {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: unknown policy type %q", ErrInvalidPolicy, pt)
	}

	saved, err := p.store.UpsertPolicy(ctx, req.Apply(current))
	if p.cache != nil {
		p.cache.Invalidate(tenantID)
	}
	if err != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("guardrails: update policy: %w", err)
	}
	p.logger.Info("guardrails: policy updated",
		"tenant_id", tenantID, "policy_type", pt, "enabled", saved.Enabled, "threshold", saved.ThresholdValue)
	return saved, nil
}
