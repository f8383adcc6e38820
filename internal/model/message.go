package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderBot   Sender = "bot"
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message statuses.
const (
	StatusReceived = "received"
	StatusSent     = "sent"
)

// ChatMessage is one persisted turn. Only Feedback changes after creation.
type ChatMessage struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Content        string         `json:"content"`
	Sender         Sender         `json:"sender"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         string         `json:"status,omitempty"`
	Intent         *Intent        `json:"intent,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	Feedback       *string        `json:"feedback,omitempty"`
}

// InteractiveKind selects how the messaging layer renders options.
type InteractiveKind string

const (
	InteractiveButtons InteractiveKind = "buttons"
	InteractiveList    InteractiveKind = "list"
)

// InteractiveOption is one selectable reply.
type InteractiveOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Interactive is a small descriptor the messaging layer turns into buttons or
// a list. The core never formats provider payloads itself.
type Interactive struct {
	Kind    InteractiveKind     `json:"kind"`
	Options []InteractiveOption `json:"options"`
}

// Handoff choices a customer can make when offered a specialist.
const (
	ChoiceSpecialist = "specialist"
	ChoiceAssistant  = "assistant"
)

// HandoffButtons is the descriptor attached to every reply that offers a
// specialist.
func HandoffButtons() *Interactive {
	return &Interactive{
		Kind: InteractiveButtons,
		Options: []InteractiveOption{
			{ID: ChoiceSpecialist, Label: "Falar com especialista"},
			{ID: ChoiceAssistant, Label: "Continuar com o assistente"},
		},
	}
}

// Reply is what the pipeline hands back to the messaging layer.
type Reply struct {
	Text           string       `json:"text"`
	Interactive    *Interactive `json:"interactive,omitempty"`
	Stage          Stage        `json:"stage"`
	Intent         Intent       `json:"intent"`
	Confidence     float64      `json:"confidence"`
	HandoffOffered bool         `json:"handoff_offered"`
	DecisionID     *uuid.UUID   `json:"decision_id,omitempty"`
	MessageID      uuid.UUID    `json:"message_id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
}

// HandoffEvent is the payload published when a conversation is escalated.
type HandoffEvent struct {
	TenantID       uuid.UUID       `json:"tenant_id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	ContactID      string          `json:"contact_id"`
	DecisionID     *uuid.UUID      `json:"decision_id,omitempty"`
	Reason         GuardrailReason `json:"reason,omitempty"`
	Stage          Stage           `json:"stage"`
	At             time.Time       `json:"at"`
}
