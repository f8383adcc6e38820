// Package guardrails decides whether a draft reply may reach the customer.
//
// Three checks run in order: confidence, price, sensitive information. Any
// triggered check makes the draft invalid; the first triggered check supplies
// the replacement text. Every failure to evaluate a check is treated as a
// trigger that hands the conversation to a human.
package guardrails

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// DecisionRecorder stores the audit record of an evaluation. It must not
// fail the caller; a nil id means the record was not stored.
type DecisionRecorder interface {
	LogDecision(ctx context.Context, d model.DecisionLog) *uuid.UUID
}

// Input is one draft to evaluate.
type Input struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	Intent         model.Intent
	Confidence     float64
	Draft          string
	State          model.ConversationState
	// DryRun evaluates without writing a decision log.
	DryRun bool
}

// Result is the verdict on a draft.
type Result struct {
	IsValid         bool                   `json:"is_valid"`
	Guardrails      []model.GuardrailCheck `json:"guardrails"`
	SafeResponse    string                 `json:"safe_response,omitempty"`
	RequiresHandoff bool                   `json:"requires_handoff"`
	Reason          *model.GuardrailReason `json:"reason,omitempty"`
	DecisionID      *uuid.UUID             `json:"decision_id,omitempty"`
}

// currencyMarker finds a stated price in a draft: a currency sign, an amount
// in reais, or the "sob consulta" placeholder an unpriced product renders as.
// Words like "valor" or "preço" alone are not a price; the flow's follow-up
// questions use them.
var currencyMarker = regexp.MustCompile(`(?i)(\$|\breais\b|\bsob consulta\b)`)

// Engine evaluates drafts against tenant policies.
type Engine struct {
	policies  *Policies
	catalog   PriceCatalog
	decisions DecisionRecorder
	logger    *slog.Logger
	tracer    trace.Tracer

	evaluations metric.Int64Counter
	triggered   metric.Int64Counter
}

// New creates an Engine. decisions may be nil, in which case nothing is
// logged.
func New(policies *Policies, catalog PriceCatalog, decisions DecisionRecorder, logger *slog.Logger) *Engine {
	meter := telemetry.Meter("aurum/guardrails")
	evaluations, _ := meter.Int64Counter("aurum.guardrail.evaluations",
		metric.WithDescription("Drafts evaluated by the guardrails engine"),
	)
	triggered, _ := meter.Int64Counter("aurum.guardrail.triggered",
		metric.WithDescription("Guardrail checks that blocked a draft, by reason"),
	)
	return &Engine{
		policies:    policies,
		catalog:     catalog,
		decisions:   decisions,
		logger:      logger,
		tracer:      telemetry.Tracer("aurum/guardrails"),
		evaluations: evaluations,
		triggered:   triggered,
	}
}

// Policies exposes the resolver for admin operations.
func (e *Engine) Policies() *Policies { return e.policies }

// ValidateResponse evaluates a draft. It does not return an error: any
// internal failure is reported as a triggered check.
func (e *Engine) ValidateResponse(ctx context.Context, in Input) Result {
	ctx, span := e.tracer.Start(ctx, "guardrails.validate", trace.WithAttributes(
		telemetry.IntentKey.String(string(in.Intent)),
		telemetry.ConfidenceKey.Float64(in.Confidence),
	))
	defer span.End()

	var checks []model.GuardrailCheck
	set, err := e.policies.Effective(ctx, in.TenantID)
	if err != nil {
		e.logger.Error("guardrails: policy lookup failed, failing closed",
			"tenant_id", in.TenantID, "error", err)
		span.RecordError(err)
		checks = []model.GuardrailCheck{
			failClosed(model.ReasonLowConfidence, err),
			failClosed(model.ReasonPriceMissing, err),
			failClosed(model.ReasonSensitiveInfo, err),
		}
	} else {
		checks = []model.GuardrailCheck{
			e.checkConfidence(set[model.PolicyConfidence], in),
			e.checkPrice(ctx, set[model.PolicyPrice], in),
			e.checkSensitive(set[model.PolicySensitiveInfo], in),
		}
	}

	res := Result{IsValid: true, Guardrails: checks}
	for _, c := range checks {
		if !c.Triggered {
			continue
		}
		if res.IsValid {
			res.IsValid = false
			res.SafeResponse = c.FallbackMessage
			res.Reason = c.Reason
		}
		res.RequiresHandoff = res.RequiresHandoff || c.HandoffTrigger
		e.triggered.Add(ctx, 1, metric.WithAttributes(telemetry.ReasonKey.String(string(*c.Reason))))
	}
	e.evaluations.Add(ctx, 1, metric.WithAttributes(telemetry.ValidKey.Bool(res.IsValid)))
	span.SetAttributes(telemetry.ValidKey.Bool(res.IsValid))
	if res.Reason != nil {
		span.SetAttributes(telemetry.ReasonKey.String(string(*res.Reason)))
	}

	if !in.DryRun && e.decisions != nil {
		res.DecisionID = e.decisions.LogDecision(ctx, model.DecisionLog{
			TenantID:           in.TenantID,
			ConversationID:     in.ConversationID,
			Intent:             in.Intent,
			Confidence:         in.Confidence,
			GuardrailTriggered: res.Reason,
			Evidence:           evidenceOf(checks),
			FallbackUsed:       !res.IsValid,
			HandoffOffered:     res.RequiresHandoff,
		})
	}
	return res
}

func (e *Engine) checkConfidence(p model.GuardrailPolicy, in Input) model.GuardrailCheck {
	if !p.Enabled {
		return skipped()
	}
	ev := map[string]any{
		"confidence": in.Confidence,
		"threshold":  p.ThresholdValue,
		"intent":     string(in.Intent),
	}
	if in.Confidence >= p.ThresholdValue {
		return model.GuardrailCheck{Evidence: ev}
	}
	return triggeredCheck(model.ReasonLowConfidence, ConfirmationText(p.FallbackMessage, in.Intent), p.HandoffTrigger, ev)
}

func (e *Engine) checkPrice(ctx context.Context, p model.GuardrailPolicy, in Input) model.GuardrailCheck {
	if !p.Enabled {
		return skipped()
	}
	marker := currencyMarker.FindString(in.Draft)
	ref := ProductRef(in.State.Entities)
	ev := map[string]any{
		"price_mentioned": marker != "",
		"product_ref":     ref,
	}
	if marker == "" || ref == "" {
		return model.GuardrailCheck{Evidence: ev}
	}
	ev["marker"] = marker

	if e.catalog == nil {
		ev["catalog"] = "not configured"
		return triggeredCheck(model.ReasonPriceMissing, fallbackOr(p.FallbackMessage, model.PriceFallbackText), true, ev)
	}
	price, err := e.catalog.LookupPrice(ctx, in.TenantID, ref)
	if err != nil {
		e.logger.Error("guardrails: price lookup failed, failing closed",
			"tenant_id", in.TenantID, "product_ref", ref, "error", err)
		return failClosed(model.ReasonPriceMissing, err)
	}
	ev["product_found"] = price.Found
	ev["price_confirmed"] = price.Confirmed
	if price.Resolved() {
		return model.GuardrailCheck{Evidence: ev}
	}
	return triggeredCheck(model.ReasonPriceMissing, fallbackOr(p.FallbackMessage, model.PriceFallbackText), true, ev)
}

// checkSensitive always answers with the built-in text; tenants cannot
// reword it.
func (e *Engine) checkSensitive(_ model.GuardrailPolicy, in Input) model.GuardrailCheck {
	kinds := DetectSensitive(in.Draft)
	if len(kinds) == 0 {
		return model.GuardrailCheck{Evidence: map[string]any{"matches": []string{}}}
	}
	return triggeredCheck(model.ReasonSensitiveInfo, model.SensitiveFallbackText, true,
		map[string]any{"matches": kinds})
}

// ConfirmationText renders the low-confidence template. The detected intent
// always appears in the result, even if an admin's template omits {intent}.
func ConfirmationText(tmpl string, in model.Intent) string {
	tmpl = fallbackOr(tmpl, model.ConfidenceFallbackText)
	if !strings.Contains(tmpl, "{intent}") {
		return tmpl + " (" + string(in) + ")"
	}
	return strings.ReplaceAll(tmpl, "{intent}", string(in))
}

func triggeredCheck(reason model.GuardrailReason, fallback string, handoff bool, ev map[string]any) model.GuardrailCheck {
	r := reason
	return model.GuardrailCheck{
		Triggered:       true,
		Reason:          &r,
		FallbackMessage: fallback,
		HandoffTrigger:  handoff,
		Evidence:        ev,
	}
}

func failClosed(reason model.GuardrailReason, err error) model.GuardrailCheck {
	return triggeredCheck(reason, model.FailClosedText, true, map[string]any{"error": err.Error()})
}

func skipped() model.GuardrailCheck {
	return model.GuardrailCheck{Evidence: map[string]any{"skipped": "disabled"}}
}

func fallbackOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// evidenceOf keys each check's evidence by the policy it evaluated, in
// evaluation order.
func evidenceOf(checks []model.GuardrailCheck) map[string]any {
	names := []model.PolicyType{model.PolicyConfidence, model.PolicyPrice, model.PolicySensitiveInfo}
	ev := make(map[string]any, len(checks))
	for i, c := range checks {
		if i < len(names) {
			entry := map[string]any{"triggered": c.Triggered}
			for k, v := range c.Evidence {
				entry[k] = v
			}
			ev[string(names[i])] = entry
		}
	}
	return ev
}
