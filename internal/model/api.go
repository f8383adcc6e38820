package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field length limits for inbound requests. They keep a single request from
// filling TEXT columns or LLM prompts with caller-controlled garbage.
const (
	MaxContactIDLen       = 128
	MaxMessageLen         = 4096
	MaxFeedbackLen        = 2000
	MaxFallbackMessageLen = 1000
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the envelope for list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// ProcessMessageRequest is the request body for POST /v1/messages.
type ProcessMessageRequest struct {
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
}

// Validate checks required fields and length limits.
func (r ProcessMessageRequest) Validate() error {
	if err := ValidateContactID(r.ContactID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if utf8.RuneCountInString(r.Text) > MaxMessageLen {
		return fmt.Errorf("text exceeds maximum length of %d characters", MaxMessageLen)
	}
	return nil
}

// ValidateContactID checks a messaging-provider contact identifier.
func ValidateContactID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("contact_id is required")
	}
	if len(id) > MaxContactIDLen {
		return fmt.Errorf("contact_id exceeds maximum length of %d characters", MaxContactIDLen)
	}
	return nil
}

// FeedbackRequest is the request body for POST /v1/messages/{id}/feedback.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// Validate checks the feedback text.
func (r FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.Feedback) == "" {
		return fmt.Errorf("feedback is required")
	}
	if utf8.RuneCountInString(r.Feedback) > MaxFeedbackLen {
		return fmt.Errorf("feedback exceeds maximum length of %d characters", MaxFeedbackLen)
	}
	return nil
}

// HandoffChoiceRequest is the request body for POST /v1/decisions/{id}/choice.
type HandoffChoiceRequest struct {
	Choice string `json:"choice"`
}

// Validate checks that the choice is one of the offered options.
func (r HandoffChoiceRequest) Validate() error {
	switch r.Choice {
	case ChoiceSpecialist, ChoiceAssistant:
		return nil
	default:
		return fmt.Errorf("choice must be %q or %q", ChoiceSpecialist, ChoiceAssistant)
	}
}

// UpdatePolicyRequest is the request body for PUT /v1/guardrails/policies/{type}.
// Nil fields keep their current value.
type UpdatePolicyRequest struct {
	Enabled         *bool          `json:"enabled,omitempty"`
	ThresholdValue  *float64       `json:"threshold_value,omitempty"`
	FallbackMessage *string        `json:"fallback_message,omitempty"`
	HandoffTrigger  *bool          `json:"handoff_trigger,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate checks ranges and lengths.
func (r UpdatePolicyRequest) Validate() error {
	if r.ThresholdValue != nil && (*r.ThresholdValue < 0 || *r.ThresholdValue > 1) {
		return fmt.Errorf("threshold_value must be within [0, 1]")
	}
	if r.FallbackMessage != nil {
		if strings.TrimSpace(*r.FallbackMessage) == "" {
			return fmt.Errorf("fallback_message must not be blank")
		}
		if utf8.RuneCountInString(*r.FallbackMessage) > MaxFallbackMessageLen {
			return fmt.Errorf("fallback_message exceeds maximum length of %d characters", MaxFallbackMessageLen)
		}
	}
	return nil
}

// Apply returns p with every non-nil field of r overlaid.
func (r UpdatePolicyRequest) Apply(p GuardrailPolicy) GuardrailPolicy {
	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
	if r.ThresholdValue != nil {
		p.ThresholdValue = *r.ThresholdValue
	}
	if r.FallbackMessage != nil {
		p.FallbackMessage = *r.FallbackMessage
	}
	if r.HandoffTrigger != nil {
		p.HandoffTrigger = *r.HandoffTrigger
	}
	if r.Metadata != nil {
		p.Metadata = r.Metadata
	}
	return p
}

// EvaluateDraftRequest is the request body for POST /v1/guardrails/evaluate.
type EvaluateDraftRequest struct {
	ContactID  string  `json:"contact_id,omitempty"`
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Draft      string  `json:"draft"`
	ProductID  string  `json:"product_id,omitempty"`
}

// Validate checks required fields and ranges.
func (r EvaluateDraftRequest) Validate() error {
	if r.Intent == "" {
		return fmt.Errorf("intent is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0, 1]")
	}
	if strings.TrimSpace(r.Draft) == "" {
		return fmt.Errorf("draft is required")
	}
	if utf8.RuneCountInString(r.Draft) > MaxMessageLen {
		return fmt.Errorf("draft exceeds maximum length of %d characters", MaxMessageLen)
	}
	if len(r.ContactID) > MaxContactIDLen {
		return fmt.Errorf("contact_id exceeds maximum length of %d characters", MaxContactIDLen)
	}
	return nil
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	SSEBroker string `json:"sse_broker,omitempty"`
	Uptime    int64  `json:"uptime_seconds"`
}
