package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage is a position in the per-contact conversation state machine.
type Stage string

const (
	StageWelcome                 Stage = "welcome"
	StageDiscovery               Stage = "discovery"
	StageProductPresentation     Stage = "product_presentation"
	StagePriceDiscussion         Stage = "price_discussion"
	StageCustomizationDiscussion Stage = "customization_discussion"
	StageAppointmentScheduling   Stage = "appointment_scheduling"
	StageObjectionHandling       Stage = "objection_handling"
	StageFollowUp                Stage = "follow_up"
)

// Stages lists every known stage in funnel order.
var Stages = []Stage{
	StageWelcome,
	StageDiscovery,
	StageProductPresentation,
	StagePriceDiscussion,
	StageCustomizationDiscussion,
	StageAppointmentScheduling,
	StageObjectionHandling,
	StageFollowUp,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStage converts a string to a Stage, rejecting unknown values.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Urgency is the time pressure a customer expressed.
type Urgency string

const (
	UrgencyNone Urgency = ""
	UrgencyHigh Urgency = "high"
	UrgencyLow  Urgency = "low"
)

// Entities are the facts accumulated about what a customer wants.
type Entities struct {
	JewelryType string            `json:"jewelry_type,omitempty"`
	Material    string            `json:"material,omitempty"`
	Occasion    string            `json:"occasion,omitempty"`
	Recipient   string            `json:"recipient,omitempty"`
	ProductID   string            `json:"product_id,omitempty"`
	ProductName string            `json:"product_name,omitempty"`
	BudgetMin   *float64          `json:"budget_min,omitempty"`
	BudgetMax   *float64          `json:"budget_max,omitempty"`
	Urgency     Urgency           `json:"urgency,omitempty"`
	Objections  int               `json:"objections,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Merge returns e updated with every value set in newer. Newer scalar values
// win; objection counts accumulate; Extra keys are overlaid.
func (e Entities) Merge(newer Entities) Entities {
	out := e
	if newer.JewelryType != "" {
		out.JewelryType = newer.JewelryType
	}
	if newer.Material != "" {
		out.Material = newer.Material
	}
	if newer.Occasion != "" {
		out.Occasion = newer.Occasion
	}
	if newer.Recipient != "" {
		out.Recipient = newer.Recipient
	}
	if newer.ProductID != "" {
		out.ProductID = newer.ProductID
	}
	if newer.ProductName != "" {
		out.ProductName = newer.ProductName
	}
	if newer.BudgetMin != nil {
		v := *newer.BudgetMin
		out.BudgetMin = &v
	}
	if newer.BudgetMax != nil {
		v := *newer.BudgetMax
		out.BudgetMax = &v
	}
	if newer.Urgency != UrgencyNone {
		out.Urgency = newer.Urgency
	}
	out.Objections = e.Objections + newer.Objections
	if len(e.Extra) > 0 || len(newer.Extra) > 0 {
		out.Extra = make(map[string]string, len(e.Extra)+len(newer.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
		for k, v := range newer.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// HasBudget reports whether any budget bound is known.
func (e Entities) HasBudget() bool {
	return e.BudgetMin != nil || e.BudgetMax != nil
}

// MaxBudget returns the highest known budget bound, or 0.
func (e Entities) MaxBudget() float64 {
	var m float64
	if e.BudgetMin != nil && *e.BudgetMin > m {
		m = *e.BudgetMin
	}
	if e.BudgetMax != nil && *e.BudgetMax > m {
		m = *e.BudgetMax
	}
	return m
}

// TimelineEntry records one visit to a stage.
type TimelineEntry struct {
	Stage      Stage     `json:"stage"`
	Intent     Intent    `json:"intent"`
	EnteredAt  time.Time `json:"entered_at"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome,omitempty"`
}

// ConversationState is the per (tenant, contact) state machine position and
// everything accumulated about the conversation.
type ConversationState struct {
	ID               uuid.UUID         `json:"id"`
	TenantID         uuid.UUID         `json:"tenant_id"`
	ContactID        string            `json:"contact_id"`
	Stage            Stage             `json:"stage"`
	Profile          map[string]string `json:"profile"`
	Entities         Entities          `json:"entities"`
	InteractionCount int               `json:"interaction_count"`
	LastInteraction  *time.Time        `json:"last_interaction,omitempty"`
	Timeline         []TimelineEntry   `json:"timeline"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// StageVisits counts timeline entries recorded for stage.
func (s ConversationState) StageVisits(stage Stage) int {
	n := 0
	for _, e := range s.Timeline {
		if e.Stage == stage {
			n++
		}
	}
	return n
}

// ProfileName returns the customer's name from the profile, or "".
func (s ConversationState) ProfileName() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile["name"]
}
