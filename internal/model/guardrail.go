package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GuardrailReason names the policy that blocked a draft.
type GuardrailReason string

const (
	ReasonPriceMissing  GuardrailReason = "price_missing"
	ReasonLowConfidence GuardrailReason = "low_confidence"
	ReasonSensitiveInfo GuardrailReason = "sensitive_info"
)

// GuardrailCheck is the result of one policy evaluation. Values are built
// once by the guardrails engine and never modified afterwards.
type GuardrailCheck struct {
	Triggered       bool             `json:"triggered"`
	Reason          *GuardrailReason `json:"reason,omitempty"`
	FallbackMessage string           `json:"fallback_message,omitempty"`
	HandoffTrigger  bool             `json:"handoff_trigger"`
	Evidence        map[string]any   `json:"evidence"`
}

// PolicyType identifies a tenant policy row.
type PolicyType string

const (
	PolicyPrice         PolicyType = "price"
	PolicyConfidence    PolicyType = "confidence"
	PolicySensitiveInfo PolicyType = "sensitive_info"
	PolicyValidation    PolicyType = "validation"
)

// PolicyTypes lists every policy type a tenant can configure.
var PolicyTypes = []PolicyType{PolicyConfidence, PolicyPrice, PolicySensitiveInfo, PolicyValidation}

// ParsePolicyType converts a string to a PolicyType.
func ParsePolicyType(s string) (PolicyType, error) {
	for _, pt := range PolicyTypes {
		if string(pt) == s {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown policy type %q", s)
}

// Default fallback texts.
const (
	ConfidenceFallbackText = "Só para confirmar: sua dúvida é sobre {intent}? Assim consigo te ajudar com mais precisão."
	PriceFallbackText      = "Vou confirmar o valor atualizado dessa peça com um de nossos especialistas. Posso te conectar agora?"
	SensitiveFallbackText  = "Por segurança, não tratamos dados pessoais ou de pagamento por aqui. Vou te conectar com um especialista para continuar com segurança."
	FailClosedText         = "Quero garantir uma resposta correta para você. Vou chamar um especialista da nossa equipe para continuar o atendimento."
	ApologyText            = "Desculpe, tive um problema para processar sua mensagem. Quer falar com um de nossos especialistas?"
	GenericConfirmText     = "Antes de responder, quero confirmar alguns detalhes com nossa equipe. Pode me contar um pouco mais sobre o que você procura?"
)

// DefaultConfidenceThreshold applies when a tenant has no confidence policy.
const DefaultConfidenceThreshold = 0.7

// GuardrailPolicy is one tenant's configuration for one policy type.
type GuardrailPolicy struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	PolicyType      PolicyType     `json:"policy_type"`
	Enabled         bool           `json:"enabled"`
	ThresholdValue  float64        `json:"threshold_value"`
	FallbackMessage string         `json:"fallback_message"`
	HandoffTrigger  bool           `json:"handoff_trigger"`
	Metadata        map[string]any `json:"metadata"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DefaultPolicy returns the policy used when a tenant has not stored one.
// The zero ID marks it as not persisted.
func DefaultPolicy(tenantID uuid.UUID, pt PolicyType, threshold float64) GuardrailPolicy {
	p := GuardrailPolicy{
		TenantID:   tenantID,
		PolicyType: pt,
		Enabled:    true,
		Metadata:   map[string]any{},
	}
	switch pt {
	case PolicyConfidence:
		p.ThresholdValue = threshold
		p.FallbackMessage = ConfidenceFallbackText
	case PolicyPrice:
		p.FallbackMessage = PriceFallbackText
		p.HandoffTrigger = true
	case PolicySensitiveInfo:
		p.FallbackMessage = SensitiveFallbackText
		p.HandoffTrigger = true
	}
	return p
}

// ValidationRules are the tenant-tunable bounds for the response validator.
type ValidationRules struct {
	MinLength       int      `json:"min_length"`
	MaxLength       int      `json:"max_length"`
	ForbiddenTerms  []string `json:"forbidden_terms"`
	MinPrice        *float64 `json:"min_price,omitempty"`
	MaxPrice        *float64 `json:"max_price,omitempty"`
	MinDeliveryDays *int     `json:"min_delivery_days,omitempty"`
	MaxDeliveryDays *int     `json:"max_delivery_days,omitempty"`
}

// RulesFromMetadata overlays validation policy metadata onto defaults.
// Unknown or mistyped keys are ignored.
func RulesFromMetadata(meta map[string]any, defaults ValidationRules) ValidationRules {
	r := defaults
	if v, ok := number(meta["min_length"]); ok {
		r.MinLength = int(v)
	}
	if v, ok := number(meta["max_length"]); ok {
		r.MaxLength = int(v)
	}
	if terms, ok := meta["forbidden_terms"].([]any); ok {
		r.ForbiddenTerms = nil
		for _, t := range terms {
			if s, ok := t.(string); ok && s != "" {
				r.ForbiddenTerms = append(r.ForbiddenTerms, s)
			}
		}
	}
	if v, ok := number(meta["min_price"]); ok {
		r.MinPrice = &v
	}
	if v, ok := number(meta["max_price"]); ok {
		r.MaxPrice = &v
	}
	if v, ok := number(meta["min_delivery_days"]); ok {
		d := int(v)
		r.MinDeliveryDays = &d
	}
	if v, ok := number(meta["max_delivery_days"]); ok {
		d := int(v)
		r.MaxDeliveryDays = &d
	}
	return r
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
