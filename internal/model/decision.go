package model

import (
	"time"

	"github.com/google/uuid"
)

// DecisionLog is the append-only audit record of one guardrail evaluation.
// Only UserChoice is written after creation.
type DecisionLog struct {
	ID                 uuid.UUID        `json:"id"`
	TenantID           uuid.UUID        `json:"tenant_id"`
	ConversationID     uuid.UUID        `json:"conversation_id"`
	Intent             Intent           `json:"intent"`
	Confidence         float64          `json:"confidence"`
	GuardrailTriggered *GuardrailReason `json:"guardrail_triggered,omitempty"`
	Evidence           map[string]any   `json:"evidence"`
	FallbackUsed       bool             `json:"fallback_used"`
	HandoffOffered     bool             `json:"handoff_offered"`
	UserChoice         *string          `json:"user_choice,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// TriggerCount is one row of the top-triggers ranking.
type TriggerCount struct {
	Reason GuardrailReason `json:"reason"`
	Count  int             `json:"count"`
}

// BucketCount is one confidence histogram bucket. Min is inclusive; Max is
// exclusive except for the last bucket.
type BucketCount struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// HistogramBuckets is the number of confidence buckets.
const HistogramBuckets = 5

// MaxTopTriggers caps the top-triggers ranking.
const MaxTopTriggers = 5

var bucketBounds = [HistogramBuckets]BucketCount{
	{Label: "0.0-0.3", Min: 0.0, Max: 0.3},
	{Label: "0.3-0.5", Min: 0.3, Max: 0.5},
	{Label: "0.5-0.7", Min: 0.5, Max: 0.7},
	{Label: "0.7-0.9", Min: 0.7, Max: 0.9},
	{Label: "0.9-1.0", Min: 0.9, Max: 1.0},
}

// NewHistogram returns the empty confidence histogram.
func NewHistogram() [HistogramBuckets]BucketCount {
	return bucketBounds
}

// BucketIndex returns the histogram bucket for confidence c. Values outside
// [0, 1] are clamped.
func BucketIndex(c float64) int {
	for i := 0; i < HistogramBuckets-1; i++ {
		if c < bucketBounds[i].Max {
			return i
		}
	}
	return HistogramBuckets - 1
}

// GuardrailStats aggregates decision logs for one tenant.
type GuardrailStats struct {
	Since               time.Time                     `json:"since"`
	Total               int                           `json:"total"`
	Triggered           int                           `json:"triggered"`
	FallbackUsed        int                           `json:"fallback_used"`
	HandoffOffered      int                           `json:"handoff_offered"`
	TopTriggers         []TriggerCount                `json:"top_triggers"`
	ConfidenceHistogram [HistogramBuckets]BucketCount `json:"confidence_histogram"`
}
