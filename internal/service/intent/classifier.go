// Package intent turns inbound customer text into an intent, a confidence,
// and extracted entities.
//
// Classification is keyword-first. The language model is consulted only when
// no keyword category matched, and any model failure degrades to a fixed
// fallback so classification never blocks a conversation.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aurum-labs/aurum/internal/llm"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/retry"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// Keyword confidences.
const (
	SpecificConfidence = 0.9
	GreetingConfidence = 0.85
	GeneralConfidence  = 0.5

	// modelThreshold is the keyword confidence below which the model is asked.
	modelThreshold = 0.6
)

// Classifier implements the two-path intent classification.
type Classifier struct {
	model  llm.Client
	policy retry.Policy
	logger *slog.Logger

	classified metric.Int64Counter
	fallbacks  metric.Int64Counter
}

// New creates a Classifier. model may be llm.Noop{} to disable the model path.
func New(m llm.Client, policy retry.Policy, logger *slog.Logger) *Classifier {
	meter := telemetry.Meter("aurum/intent")
	classified, _ := meter.Int64Counter("aurum.intent.classifications",
		metric.WithDescription("Messages classified, by source"),
	)
	fallbacks, _ := meter.Int64Counter("aurum.intent.fallback",
		metric.WithDescription("Model classifications that exhausted retries"),
	)
	if m == nil {
		m = llm.Noop{}
	}
	return &Classifier{
		model:      m,
		policy:     policy,
		logger:     logger,
		classified: classified,
		fallbacks:  fallbacks,
	}
}

// Classify never fails: every error path ends in a usable classification.
func (c *Classifier) Classify(ctx context.Context, message string, state model.ConversationState) model.Classification {
	result := ClassifyKeywords(message)
	if result.Intent != model.IntentGeneralInquiry || result.Confidence >= modelThreshold {
		c.record(ctx, result)
		return result
	}
	if _, ok := c.model.(llm.Noop); ok {
		c.record(ctx, result)
		return result
	}

	viaModel, err := c.classifyWithModel(ctx, message, state)
	if err != nil {
		c.logger.Warn("intent: model classification failed, using fallback",
			"tenant_id", state.TenantID, "contact_id", state.ContactID, "error", err)
		c.fallbacks.Add(ctx, 1)
		fb := model.FallbackClassification()
		c.record(ctx, fb)
		return fb
	}
	viaModel.Entities = result.Entities.Merge(viaModel.Entities)
	c.record(ctx, viaModel)
	return viaModel
}

func (c *Classifier) record(ctx context.Context, cl model.Classification) {
	c.classified.Add(ctx, 1, metric.WithAttributes(
		telemetry.SourceKey.String(string(cl.Source)),
		telemetry.IntentKey.String(string(cl.Intent)),
	))
}

func (c *Classifier) classifyWithModel(ctx context.Context, message string, state model.ConversationState) (model.Classification, error) {
	req := llm.Request{
		System: systemPrompt,
		User:   userPrompt(message, state),
		JSON:   true,
	}
	p := c.policy
	p.OnRetry = func(err error, wait time.Duration) {
		c.logger.Debug("intent: retrying model classification", "wait", wait, "error", err)
	}
	return retry.Do(ctx, p, func(ctx context.Context) (model.Classification, error) {
		raw, err := c.model.Complete(ctx, req)
		if err != nil {
			if !llm.Retriable(err) || errors.Is(err, context.Canceled) {
				return model.Classification{}, retry.Permanent(err)
			}
			return model.Classification{}, err
		}
		return parseModelReply(raw)
	})
}

// ClassifyKeywords runs the deterministic path only.
func ClassifyKeywords(message string) model.Classification {
	text := Normalize(message)
	ents := extractEntities(text)

	intent, conf := model.IntentGeneralInquiry, GeneralConfidence
	switch {
	case ContainsAny(text, humanTerms):
		intent, conf = model.IntentHumanRequest, SpecificConfidence
	case ContainsAny(text, objectionTerms):
		intent, conf = model.IntentPriceObjection, SpecificConfidence
	case ContainsAny(text, priceTerms):
		intent, conf = model.IntentPriceInquiry, SpecificConfidence
	case ContainsAny(text, appointmentTerms):
		intent, conf = model.IntentAppointmentRequest, SpecificConfidence
	case ContainsAny(text, customizationTerms):
		intent, conf = model.IntentCustomizationRequest, SpecificConfidence
	case ContainsAny(text, productTerms) || ents.JewelryType != "" || ents.Material != "":
		intent, conf = model.IntentProductInquiry, SpecificConfidence
	case ContainsAny(text, greetingTerms):
		intent, conf = model.IntentGreeting, GreetingConfidence
	}
	if intent == model.IntentPriceObjection {
		ents.Objections = 1
	}
	return model.Classification{
		Intent:     intent,
		Confidence: conf,
		Entities:   ents,
		Source:     model.SourceKeyword,
	}
}

func extractEntities(text string) model.Entities {
	e := model.Entities{
		JewelryType: matchValue(text, jewelryTerms),
		Material:    matchValue(text, materialTerms),
		Occasion:    matchValue(text, occasionTerms),
		Recipient:   matchValue(text, recipientTerms),
	}
	switch {
	case ContainsAny(text, lowUrgencyTerms):
		e.Urgency = model.UrgencyLow
	case ContainsAny(text, highUrgencyTerms):
		e.Urgency = model.UrgencyHigh
	}
	e.BudgetMin, e.BudgetMax = extractBudget(text)
	return e
}
