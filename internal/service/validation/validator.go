// Package validation is the secondary sanity pass over a reply that already
// cleared the guardrails. Failed checks lower a confidence score; only
// structural and content problems make the reply invalid.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/aurum-labs/aurum/internal/llm"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/retry"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
	"github.com/aurum-labs/aurum/internal/service/intent"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// Penalty factors applied to confidence.
const (
	PenaltyTooShort      = 0.8
	PenaltyTooLong       = 0.7
	PenaltyForbidden     = 0.5
	PenaltySensitive     = 0.5
	PenaltyPriceRange    = 0.9
	PenaltyDeliveryRange = 0.95
)

// Context is what the validator knows about the conversation.
type Context struct {
	TenantID        uuid.UUID
	LastUserMessage string
	Rules           model.ValidationRules
}

// Result is the validator's verdict.
type Result struct {
	IsValid    bool     `json:"is_valid"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings,omitempty"`
	Confidence float64  `json:"confidence"`
	Relevance  float64  `json:"relevance"`
}

var deliveryDays = regexp.MustCompile(`(\d{1,3})\s*dias?\b`)

const relevancePrompt = `Avalie de 0.0 a 1.0 o quanto a resposta de uma joalheria é relevante para a mensagem do cliente.
Responda SOMENTE com o número.`

// Validator scores replies.
type Validator struct {
	model  llm.Client
	policy retry.Policy
	logger *slog.Logger

	invalid metric.Int64Counter
}

// New creates a Validator. m may be llm.Noop{} to skip the relevance check.
func New(m llm.Client, policy retry.Policy, logger *slog.Logger) *Validator {
	meter := telemetry.Meter("aurum/validation")
	invalid, _ := meter.Int64Counter("aurum.validation.invalid",
		metric.WithDescription("Replies the response validator marked invalid"),
	)
	if m == nil {
		m = llm.Noop{}
	}
	return &Validator{model: m, policy: policy, logger: logger, invalid: invalid}
}

// ValidateResponse scores message against the rules in vc.
func (v *Validator) ValidateResponse(ctx context.Context, message string, vc Context) Result {
	res := Result{Confidence: 1.0, Relevance: 1.0, Errors: []string{}}
	r := vc.Rules

	n := utf8.RuneCountInString(strings.TrimSpace(message))
	if r.MinLength > 0 && n < r.MinLength {
		res.Confidence *= PenaltyTooShort
		res.Errors = append(res.Errors, fmt.Sprintf("structural: response has %d characters, minimum is %d", n, r.MinLength))
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		res.Confidence *= PenaltyTooLong
		res.Errors = append(res.Errors, fmt.Sprintf("structural: response has %d characters, maximum is %d", n, r.MaxLength))
	}

	if found := forbiddenTerms(message, r.ForbiddenTerms); len(found) > 0 {
		res.Confidence *= PenaltyForbidden
		res.Errors = append(res.Errors, "content: forbidden terms: "+strings.Join(found, ", "))
	}
	if kinds := guardrails.DetectSensitive(message); len(kinds) > 0 {
		res.Confidence *= PenaltySensitive
		res.Errors = append(res.Errors, "content: sensitive data: "+strings.Join(kinds, ", "))
	}

	if w := priceOutOfRange(message, r.MinPrice, r.MaxPrice); w != "" {
		res.Confidence *= PenaltyPriceRange
		res.Warnings = append(res.Warnings, w)
	}
	if w := deliveryOutOfRange(message, r.MinDeliveryDays, r.MaxDeliveryDays); w != "" {
		res.Confidence *= PenaltyDeliveryRange
		res.Warnings = append(res.Warnings, w)
	}

	if strings.TrimSpace(vc.LastUserMessage) != "" {
		res.Relevance = v.relevance(ctx, message, vc)
		res.Confidence *= res.Relevance
	}

	res.IsValid = len(res.Errors) == 0
	if !res.IsValid {
		v.invalid.Add(ctx, 1)
	}
	return res
}

func forbiddenTerms(message string, terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	text := intent.Normalize(message)
	var found []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if intent.ContainsAny(text, []string{intent.Normalize(t)}) {
			found = append(found, t)
		}
	}
	return found
}

func priceOutOfRange(message string, lo, hi *float64) string {
	if lo == nil && hi == nil {
		return ""
	}
	for _, amt := range intent.ExtractAmounts(message) {
		if (lo != nil && amt < *lo) || (hi != nil && amt > *hi) {
			return fmt.Sprintf("business: price %.2f outside allowed range", amt)
		}
	}
	return ""
}

func deliveryOutOfRange(message string, lo, hi *int) string {
	if lo == nil && hi == nil {
		return ""
	}
	for _, m := range deliveryDays.FindAllStringSubmatch(intent.Normalize(message), -1) {
		d, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if (lo != nil && d < *lo) || (hi != nil && d > *hi) {
			return fmt.Sprintf("business: delivery in %d days outside allowed range", d)
		}
	}
	return ""
}

// relevance asks the model to score the reply. Any failure scores 1.0 so a
// model outage never penalizes a reply.
func (v *Validator) relevance(ctx context.Context, message string, vc Context) float64 {
	if _, ok := v.model.(llm.Noop); ok {
		return 1.0
	}
	req := llm.Request{
		System: relevancePrompt,
		User:   "Mensagem do cliente: " + vc.LastUserMessage + "\nResposta: " + message,
	}
	p := v.policy
	p.OnRetry = func(err error, wait time.Duration) {
		v.logger.Debug("validation: retrying relevance score", "wait", wait, "error", err)
	}
	score, err := retry.Do(ctx, p, func(ctx context.Context) (float64, error) {
		raw, err := v.model.Complete(ctx, req)
		if err != nil {
			if !llm.Retriable(err) || errors.Is(err, context.Canceled) {
				return 0, retry.Permanent(err)
			}
			return 0, err
		}
		return parseScore(raw)
	})
	if err != nil {
		v.logger.Warn("validation: relevance check failed, using neutral score",
			"tenant_id", vc.TenantID, "error", err)
		return 1.0
	}
	return score
}

var scoreNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

func parseScore(raw string) (float64, error) {
	m := scoreNumber.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("validation: no score in %q", raw)
	}
	s, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("validation: parse score: %w", err)
	}
	if s < 0 || s > 1 {
		return 0, fmt.Errorf("validation: score %v outside [0, 1]", s)
	}
	return s, nil
}

// DefaultRules builds validator defaults from configuration values.
func DefaultRules(minLength, maxLength int, forbidden []string) model.ValidationRules {
	return model.ValidationRules{
		MinLength:      minLength,
		MaxLength:      maxLength,
		ForbiddenTerms: forbidden,
	}
}
