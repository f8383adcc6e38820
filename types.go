package aurum

import (
	"time"

	"github.com/google/uuid"
)

// Handoff is a conversation the bot escalated to a human specialist.
type Handoff struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	ContactID      string
	DecisionID     *uuid.UUID // nil when the decision log write failed
	Reason         string     // guardrail that fired, e.g. "price_missing"; empty for a customer request
	Stage          string
	At             time.Time
}

// ProductPrice is a catalog answer for one product reference.
type ProductPrice struct {
	// Found is false when the catalog does not know the product.
	Found bool
	// Amount is nil when the product exists but has no price.
	Amount *float64
	// Confirmed marks prices the store has approved for quoting.
	Confirmed bool
}

// CompletionRequest is one system+user exchange with a language model.
type CompletionRequest struct {
	System string
	User   string
	// JSON asks the model for a single JSON object.
	JSON bool
}
