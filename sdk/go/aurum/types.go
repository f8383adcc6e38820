package aurum

import (
	"time"

	"github.com/google/uuid"
)

// Handoff choices a customer can make when offered a specialist.
const (
	ChoiceSpecialist = "specialist"
	ChoiceAssistant  = "assistant"
)

// Policy types accepted by UpdatePolicy.
const (
	PolicyPrice         = "price"
	PolicyConfidence    = "confidence"
	PolicySensitiveInfo = "sensitive_info"
	PolicyValidation    = "validation"
)

// InteractiveOption is one selectable reply.
type InteractiveOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Interactive describes buttons ("buttons") or a list ("list") to render
// with the reply text.
type Interactive struct {
	Kind    string              `json:"kind"`
	Options []InteractiveOption `json:"options"`
}

// Reply is what the bot answers to one customer message.
type Reply struct {
	Text           string       `json:"text"`
	Interactive    *Interactive `json:"interactive,omitempty"`
	Stage          string       `json:"stage"`
	Intent         string       `json:"intent"`
	Confidence     float64      `json:"confidence"`
	HandoffOffered bool         `json:"handoff_offered"`
	DecisionID     *uuid.UUID   `json:"decision_id,omitempty"`
	MessageID      uuid.UUID    `json:"message_id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
}

// TimelineEntry records one stage visit.
type TimelineEntry struct {
	Stage      string    `json:"stage"`
	Intent     string    `json:"intent"`
	EnteredAt  time.Time `json:"entered_at"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome,omitempty"`
}

// Conversation is the state of one contact's conversation.
type Conversation struct {
	ID               uuid.UUID         `json:"id"`
	ContactID        string            `json:"contact_id"`
	Stage            string            `json:"stage"`
	Profile          map[string]string `json:"profile"`
	Entities         map[string]any    `json:"entities"`
	InteractionCount int               `json:"interaction_count"`
	LastInteraction  *time.Time        `json:"last_interaction,omitempty"`
	Timeline         []TimelineEntry   `json:"timeline"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Message is one stored chat message.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Content        string         `json:"content"`
	Sender         string         `json:"sender"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         string         `json:"status,omitempty"`
	Intent         *string        `json:"intent,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	Feedback       *string        `json:"feedback,omitempty"`
}

// MessagePage is a page of messages, oldest first.
type MessagePage struct {
	Messages []Message
	HasMore  bool
}

// Policy is one tenant guardrail policy.
type Policy struct {
	ID              uuid.UUID      `json:"id"`
	PolicyType      string         `json:"policy_type"`
	Enabled         bool           `json:"enabled"`
	ThresholdValue  float64        `json:"threshold_value"`
	FallbackMessage string         `json:"fallback_message"`
	HandoffTrigger  bool           `json:"handoff_trigger"`
	Metadata        map[string]any `json:"metadata"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// PolicyUpdate changes a policy. Nil fields keep their stored value.
type PolicyUpdate struct {
	Enabled         *bool          `json:"enabled,omitempty"`
	ThresholdValue  *float64       `json:"threshold_value,omitempty"`
	FallbackMessage *string        `json:"fallback_message,omitempty"`
	HandoffTrigger  *bool          `json:"handoff_trigger,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// TriggerCount is how often one guardrail fired.
type TriggerCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// BucketCount is one confidence histogram bucket.
type BucketCount struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// GuardrailStats aggregates guardrail decisions since a point in time.
type GuardrailStats struct {
	Since               time.Time      `json:"since"`
	Total               int            `json:"total"`
	Triggered           int            `json:"triggered"`
	FallbackUsed        int            `json:"fallback_used"`
	HandoffOffered      int            `json:"handoff_offered"`
	TopTriggers         []TriggerCount `json:"top_triggers"`
	ConfidenceHistogram []BucketCount  `json:"confidence_histogram"`
}

// DraftEvaluation is the input of EvaluateDraft.
type DraftEvaluation struct {
	ContactID  string  `json:"contact_id,omitempty"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Draft      string  `json:"draft"`
	ProductID  string  `json:"product_id,omitempty"`
}

// GuardrailCheck is the outcome of one guardrail.
type GuardrailCheck struct {
	Triggered       bool           `json:"triggered"`
	Reason          *string        `json:"reason,omitempty"`
	FallbackMessage string         `json:"fallback_message,omitempty"`
	HandoffTrigger  bool           `json:"handoff_trigger"`
	Evidence        map[string]any `json:"evidence"`
}

// EvaluationResult is what the guardrails decided about a draft.
type EvaluationResult struct {
	IsValid         bool             `json:"is_valid"`
	Guardrails      []GuardrailCheck `json:"guardrails"`
	SafeResponse    string           `json:"safe_response,omitempty"`
	RequiresHandoff bool             `json:"requires_handoff"`
	Reason          *string          `json:"reason,omitempty"`
}

// HealthResponse is returned by Health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	SSEBroker string `json:"sse_broker,omitempty"`
	Uptime    int64  `json:"uptime_seconds"`
}
