// Package chat runs one inbound customer message through the full pipeline:
// state lookup, classification, flow, guardrails, validation, persistence,
// and handoff notification.
//
// Both the HTTP API and the MCP server delegate to this service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/conversation"
	"github.com/aurum-labs/aurum/internal/service/decisionlog"
	"github.com/aurum-labs/aurum/internal/service/flow"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
	"github.com/aurum-labs/aurum/internal/service/intent"
	"github.com/aurum-labs/aurum/internal/service/validation"
	"github.com/aurum-labs/aurum/internal/telemetry"
)

// ErrInvalidInput wraps every caller error ProcessMessage and the feedback
// operations return.
var ErrInvalidInput = errors.New("invalid input")

// Turn outcomes recorded on the timeline.
const (
	OutcomeAnswered         = "answered"
	OutcomeValidationFailed = "validation_failed"
	OutcomeError            = "error"
	outcomeGuardrailPrefix  = "guardrail:"
)

// Store is the message and notification storage the pipeline needs.
// *storage.DB satisfies it.
type Store interface {
	InsertMessage(ctx context.Context, m model.ChatMessage) (model.ChatMessage, error)
	SetMessageFeedback(ctx context.Context, tenantID, id uuid.UUID, feedback string) error
	ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, before *time.Time, limit int) ([]model.ChatMessage, error)
	PublishHandoff(ctx context.Context, ev model.HandoffEvent) error
}

// Deps are the components the pipeline wires together.
type Deps struct {
	Store         Store
	Conversations *conversation.Store
	Classifier    *intent.Classifier
	Flow          *flow.Engine
	Guardrails    *guardrails.Engine
	Validator     *validation.Validator
	Decisions     *decisionlog.Logger
	// Catalog supplies quotable prices to the flow engine. May be nil.
	Catalog guardrails.PriceCatalog
	// Rules are the validation defaults tenants override through the
	// validation policy metadata.
	Rules model.ValidationRules
}

// Service processes customer messages.
type Service struct {
	store     Store
	conv      *conversation.Store
	classify  *intent.Classifier
	flow      *flow.Engine
	guard     *guardrails.Engine
	validator *validation.Validator
	decisions *decisionlog.Logger
	catalog   guardrails.PriceCatalog
	rules     model.ValidationRules
	logger    *slog.Logger
	tracer    trace.Tracer

	duration  metric.Float64Histogram
	handoffs  metric.Int64Counter
	recovered metric.Int64Counter
}

// New creates a Service.
func New(d Deps, logger *slog.Logger) *Service {
	meter := telemetry.Meter("aurum/chat")
	duration, _ := meter.Float64Histogram("aurum.chat.duration",
		metric.WithDescription("Time to process one inbound message (ms)"),
		metric.WithUnit("ms"),
	)
	handoffs, _ := meter.Int64Counter("aurum.chat.handoffs",
		metric.WithDescription("Replies that offered a human specialist"),
	)
	recovered, _ := meter.Int64Counter("aurum.chat.recovered",
		metric.WithDescription("Pipeline failures answered with the apology text"),
	)
	return &Service{
		store:     d.Store,
		conv:      d.Conversations,
		classify:  d.Classifier,
		flow:      d.Flow,
		guard:     d.Guardrails,
		validator: d.Validator,
		decisions: d.Decisions,
		catalog:   d.Catalog,
		rules:     d.Rules,
		logger:    logger,
		tracer:    telemetry.Tracer("aurum/chat"),
		duration:  duration,
		handoffs:  handoffs,
		recovered: recovered,
	}
}

// ProcessMessage answers one inbound message. It returns an error only for
// invalid input; every failure inside the pipeline becomes the apology reply
// with a specialist offered.
func (s *Service) ProcessMessage(ctx context.Context, tenantID uuid.UUID, contactID, text string) (reply model.Reply, err error) {
	req := model.ProcessMessageRequest{ContactID: contactID, Text: text}
	if err := req.Validate(); err != nil {
		return model.Reply{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ctx, span := s.tracer.Start(ctx, "chat.process_message", trace.WithAttributes(
		telemetry.Tenant(tenantID),
	))
	start := time.Now()
	defer func() {
		s.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()

	// The conversation is kept outside process so a failure after lookup can
	// still be attached to it.
	var st model.ConversationState
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chat: pipeline panic", "tenant_id", tenantID, "contact_id", contactID, "panic", r)
			span.SetAttributes(telemetry.RecoveredKey.Bool(true))
			reply, err = s.apology(ctx, tenantID, contactID, st), nil
		}
	}()

	reply, perr := s.process(ctx, tenantID, contactID, text, &st)
	if perr != nil {
		s.logger.Error("chat: pipeline failed", "tenant_id", tenantID, "contact_id", contactID, "error", perr)
		span.RecordError(perr)
		return s.apology(ctx, tenantID, contactID, st), nil
	}
	span.SetAttributes(
		telemetry.IntentKey.String(string(reply.Intent)),
		telemetry.StageKey.String(string(reply.Stage)),
		telemetry.HandoffKey.Bool(reply.HandoffOffered),
	)
	return reply, nil
}

func (s *Service) process(ctx context.Context, tenantID uuid.UUID, contactID, text string, st *model.ConversationState) (model.Reply, error) {
	// 1. Conversation state, created on first contact.
	state, err := s.conv.GetOrCreate(ctx, tenantID, contactID)
	if err != nil {
		return model.Reply{}, err
	}
	*st = state

	// 2. Persist the inbound message.
	if _, err := s.store.InsertMessage(ctx, model.ChatMessage{
		TenantID:       tenantID,
		ConversationID: state.ID,
		Content:        text,
		Sender:         model.SenderUser,
		Status:         model.StatusReceived,
	}); err != nil {
		return model.Reply{}, fmt.Errorf("chat: store inbound message: %w", err)
	}

	// 3. Classify.
	cl := s.classify.Classify(ctx, text, state)

	// 4. A quotable price for the product under discussion, if the catalog
	// has a confirmed one. The guardrails repeat the lookup on their own.
	price := s.quotablePrice(ctx, tenantID, state.Entities.Merge(cl.Entities))

	// 5. Draft the reply and choose the next stage.
	fr := s.flow.Respond(flow.Input{State: state, Classification: cl, Message: text, Price: price})
	after := state
	after.Stage = fr.NextStage
	after.Entities = fr.Entities

	// 6. Guardrails.
	gr := s.guard.ValidateResponse(ctx, guardrails.Input{
		TenantID:       tenantID,
		ConversationID: state.ID,
		Intent:         cl.Intent,
		Confidence:     cl.Confidence,
		Draft:          fr.Draft,
		State:          after,
	})

	// 7. Validation only matters when the draft itself would be sent.
	final, outcome := fr.Draft, OutcomeAnswered
	var vr *validation.Result
	if !gr.IsValid {
		final = gr.SafeResponse
		outcome = outcomeGuardrailPrefix + string(*gr.Reason)
	} else if rules, ok := s.validationRules(ctx, tenantID); ok {
		res := s.validator.ValidateResponse(ctx, fr.Draft, validation.Context{
			TenantID:        tenantID,
			LastUserMessage: text,
			Rules:           rules,
		})
		vr = &res
		if !res.IsValid {
			s.logger.Warn("chat: draft failed validation",
				"tenant_id", tenantID, "contact_id", contactID, "draft", truncate(fr.Draft, 120), "errors", res.Errors)
			final, outcome = model.GenericConfirmText, OutcomeValidationFailed
		}
	}

	// 8. Advance the state.
	next, err := s.conv.RecordTurn(ctx, state, conversation.Turn{
		Intent:    cl.Intent,
		NextStage: fr.NextStage,
		Entities:  cl.Entities,
		Outcome:   outcome,
	})
	if err != nil {
		return model.Reply{}, err
	}
	*st = next

	// 9. Persist the bot message.
	handoff := gr.RequiresHandoff || fr.Handoff
	meta := map[string]any{
		"stage":   string(fr.NextStage),
		"source":  string(cl.Source),
		"handoff": handoff,
		"tone":    string(fr.Tone),
	}
	if gr.DecisionID != nil {
		meta["decision_id"] = gr.DecisionID.String()
	}
	if gr.Reason != nil {
		meta["guardrail"] = string(*gr.Reason)
	}
	if vr != nil {
		meta["validation_confidence"] = vr.Confidence
		if len(vr.Warnings) > 0 {
			meta["validation_warnings"] = vr.Warnings
		}
	}
	in, conf := cl.Intent, cl.Confidence
	msg, err := s.store.InsertMessage(ctx, model.ChatMessage{
		TenantID:       tenantID,
		ConversationID: next.ID,
		Content:        final,
		Sender:         model.SenderBot,
		Status:         model.StatusSent,
		Intent:         &in,
		Confidence:     &conf,
		Metadata:       meta,
	})
	if err != nil {
		return model.Reply{}, fmt.Errorf("chat: store reply: %w", err)
	}

	reply := model.Reply{
		Text:           final,
		Stage:          next.Stage,
		Intent:         cl.Intent,
		Confidence:     cl.Confidence,
		HandoffOffered: handoff,
		DecisionID:     gr.DecisionID,
		MessageID:      msg.ID,
		ConversationID: next.ID,
	}

	// 10. Offer a specialist.
	if handoff {
		var reason model.GuardrailReason
		if gr.Reason != nil {
			reason = *gr.Reason
		}
		s.offerHandoff(ctx, &reply, next, gr.DecisionID, reason)
	}
	return reply, nil
}

func (s *Service) quotablePrice(ctx context.Context, tenantID uuid.UUID, e model.Entities) *float64 {
	ref := guardrails.ProductRef(e)
	if ref == "" || s.catalog == nil {
		return nil
	}
	p, err := s.catalog.LookupPrice(ctx, tenantID, ref)
	if err != nil {
		s.logger.Warn("chat: price lookup failed", "tenant_id", tenantID, "product_ref", ref, "error", err)
		return nil
	}
	if !p.Resolved() {
		return nil
	}
	v := *p.Amount
	return &v
}

// validationRules returns the tenant's effective validation rules, or false
// when the tenant disabled validation.
func (s *Service) validationRules(ctx context.Context, tenantID uuid.UUID) (model.ValidationRules, bool) {
	set, err := s.guard.Policies().Effective(ctx, tenantID)
	if err != nil {
		return s.rules, true
	}
	p, ok := set[model.PolicyValidation]
	if !ok {
		return s.rules, true
	}
	if !p.Enabled {
		return model.ValidationRules{}, false
	}
	return model.RulesFromMetadata(p.Metadata, s.rules), true
}

// offerHandoff attaches the specialist buttons and announces the handoff.
// Publishing is best-effort.
func (s *Service) offerHandoff(ctx context.Context, reply *model.Reply, st model.ConversationState, decisionID *uuid.UUID, reason model.GuardrailReason) {
	reply.HandoffOffered = true
	reply.Interactive = model.HandoffButtons()
	s.handoffs.Add(ctx, 1, metric.WithAttributes(telemetry.ReasonKey.String(string(reason))))
	if st.ID == uuid.Nil {
		return
	}
	err := s.store.PublishHandoff(ctx, model.HandoffEvent{
		TenantID:       st.TenantID,
		ConversationID: st.ID,
		ContactID:      st.ContactID,
		DecisionID:     decisionID,
		Reason:         reason,
		Stage:          st.Stage,
		At:             time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("chat: publish handoff failed",
			"tenant_id", st.TenantID, "conversation_id", st.ID, "error", err)
	}
}

// apology is the reply for any pipeline failure. It is stored when the
// conversation is known.
func (s *Service) apology(ctx context.Context, tenantID uuid.UUID, contactID string, st model.ConversationState) model.Reply {
	s.recovered.Add(ctx, 1)
	stage := st.Stage
	if !stage.Valid() {
		stage = model.StageWelcome
	}
	reply := model.Reply{
		Text:           model.ApologyText,
		Stage:          stage,
		Intent:         model.IntentGeneralInquiry,
		ConversationID: st.ID,
	}
	if st.ID != uuid.Nil {
		msg, err := s.store.InsertMessage(ctx, model.ChatMessage{
			TenantID:       tenantID,
			ConversationID: st.ID,
			Content:        model.ApologyText,
			Sender:         model.SenderBot,
			Status:         model.StatusSent,
			Metadata:       map[string]any{"outcome": OutcomeError},
		})
		if err != nil {
			s.logger.Warn("chat: store apology failed", "tenant_id", tenantID, "contact_id", contactID, "error", err)
		} else {
			reply.MessageID = msg.ID
		}
	}
	s.offerHandoff(ctx, &reply, st, nil, "")
	return reply
}

// RecordFeedback attaches human reviewer feedback to a message.
func (s *Service) RecordFeedback(ctx context.Context, tenantID, messageID uuid.UUID, feedback string) error {
	req := model.FeedbackRequest{Feedback: feedback}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.SetMessageFeedback(ctx, tenantID, messageID, strings.TrimSpace(feedback)); err != nil {
		return fmt.Errorf("chat: record feedback: %w", err)
	}
	return nil
}

// RecordHandoffChoice stores the customer's answer to a specialist offer.
func (s *Service) RecordHandoffChoice(ctx context.Context, tenantID, decisionID uuid.UUID, choice string) error {
	req := model.HandoffChoiceRequest{Choice: choice}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.decisions.RecordUserChoice(ctx, tenantID, decisionID, choice)
}

// Conversation returns the stored state for a contact.
func (s *Service) Conversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	if err := model.ValidateContactID(contactID); err != nil {
		return model.ConversationState{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.conv.Get(ctx, tenantID, contactID)
}

// Message history page sizes.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Messages returns a contact's messages, oldest first, before the optional
// cursor.
func (s *Service) Messages(ctx context.Context, tenantID uuid.UUID, contactID string, before *time.Time, limit int) ([]model.ChatMessage, error) {
	st, err := s.Conversation(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	msgs, err := s.store.ListMessages(ctx, tenantID, st.ID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	return msgs, nil
}

// EvaluateDraft runs a draft through the guardrails without logging a
// decision or touching conversation state. A contact with no conversation is
// evaluated against empty state.
func (s *Service) EvaluateDraft(ctx context.Context, tenantID uuid.UUID, req model.EvaluateDraftRequest) (guardrails.Result, error) {
	if err := req.Validate(); err != nil {
		return guardrails.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var st model.ConversationState
	if req.ContactID != "" {
		got, err := s.conv.Get(ctx, tenantID, req.ContactID)
		if err == nil {
			st = got
		}
	}
	if req.ProductID != "" {
		st.Entities.ProductID = req.ProductID
	}
	return s.guard.ValidateResponse(ctx, guardrails.Input{
		TenantID:       tenantID,
		ConversationID: st.ID,
		Intent:         req.Intent,
		Confidence:     req.Confidence,
		Draft:          req.Draft,
		State:          st,
		DryRun:         true,
	}), nil
}

// Stats returns the tenant's guardrail analytics since the given time.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (model.GuardrailStats, error) {
	return s.decisions.Stats(ctx, tenantID, since)
}

// Policies lists the tenant's effective guardrail policies.
func (s *Service) Policies(ctx context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error) {
	return s.guard.Policies().List(ctx, tenantID)
}

// UpdatePolicy applies an admin policy change.
func (s *Service) UpdatePolicy(ctx context.Context, tenantID uuid.UUID, policyType string, req model.UpdatePolicyRequest) (model.GuardrailPolicy, error) {
	pt, err := model.ParsePolicyType(policyType)
	if err != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := req.Validate(); err != nil {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.guard.Policies().Update(ctx, tenantID, pt, req)
}

// truncate shortens s for log attributes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
