package aurum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Aurum server (e.g. "http://localhost:8080").
	BaseURL string

	// TenantID identifies the store. It is sent as X-Tenant-ID on every call.
	TenantID uuid.UUID

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Aurum API, bound to one tenant.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	tenantID string
	client   *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or TenantID is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("aurum: BaseURL is required")
	}
	if cfg.TenantID == uuid.Nil {
		return nil, fmt.Errorf("aurum: TenantID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID.String(),
		client:   httpClient,
	}, nil
}

// ProcessMessage sends one inbound customer message and returns the reply to
// deliver. A rate-limited contact yields an error for which IsRateLimited is true.
func (c *Client) ProcessMessage(ctx context.Context, contactID, text string) (*Reply, error) {
	body := map[string]string{"contact_id": contactID, "text": text}
	var resp Reply
	if err := c.do(ctx, http.MethodPost, "/v1/messages", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordFeedback attaches customer or operator feedback to a bot message.
func (c *Client) RecordFeedback(ctx context.Context, messageID uuid.UUID, feedback string) error {
	body := map[string]string{"feedback": feedback}
	return c.do(ctx, http.MethodPost, "/v1/messages/"+messageID.String()+"/feedback", body, nil)
}

// RecordHandoffChoice records the customer's answer to a specialist offer:
// ChoiceSpecialist or ChoiceAssistant. The answer can be recorded once.
func (c *Client) RecordHandoffChoice(ctx context.Context, decisionID uuid.UUID, choice string) error {
	body := map[string]string{"choice": choice}
	return c.do(ctx, http.MethodPost, "/v1/decisions/"+decisionID.String()+"/choice", body, nil)
}

// Conversation returns the conversation state of a contact.
func (c *Client) Conversation(ctx context.Context, contactID string) (*Conversation, error) {
	var resp Conversation
	if err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(contactID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessagesOptions are optional filters for the Messages method.
type MessagesOptions struct {
	// Before returns only messages older than this time.
	Before time.Time
	// Limit caps the page size (server default 50, maximum 200).
	Limit int
}

// Messages returns a page of a contact's message history, oldest first.
func (c *Client) Messages(ctx context.Context, contactID string, opts *MessagesOptions) (*MessagePage, error) {
	params := url.Values{}
	if opts != nil {
		if !opts.Before.IsZero() {
			params.Set("before", opts.Before.UTC().Format(time.RFC3339))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	path := "/v1/conversations/" + url.PathEscape(contactID) + "/messages"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list struct {
		Data    []Message `json:"data"`
		HasMore bool      `json:"has_more"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, wholeBody{&list}); err != nil {
		return nil, err
	}
	return &MessagePage{Messages: list.Data, HasMore: list.HasMore}, nil
}

// Policies lists the tenant's guardrail policies, defaults included.
func (c *Client) Policies(ctx context.Context) ([]Policy, error) {
	var resp []Policy
	if err := c.do(ctx, http.MethodGet, "/v1/guardrails/policies", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdatePolicy changes one guardrail policy and returns the stored result.
func (c *Client) UpdatePolicy(ctx context.Context, policyType string, update PolicyUpdate) (*Policy, error) {
	var resp Policy
	if err := c.do(ctx, http.MethodPut, "/v1/guardrails/policies/"+url.PathEscape(policyType), update, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns guardrail analytics since the given time. A zero since uses
// the server default of seven days.
func (c *Client) Stats(ctx context.Context, since time.Time) (*GuardrailStats, error) {
	path := "/v1/guardrails/stats"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	var resp GuardrailStats
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EvaluateDraft checks a draft reply against the guardrails without sending
// or logging anything.
func (c *Client) EvaluateDraft(ctx context.Context, req DraftEvaluation) (*EvaluationResult, error) {
	var resp EvaluationResult
	if err := c.do(ctx, http.MethodPost, "/v1/guardrails/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks server health. This endpoint does not need a tenant.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// wholeBody asks handleResponse to decode the full body instead of data.
type wholeBody struct{ v any }

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("aurum: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("aurum: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Tenant-ID", c.tenantID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("aurum: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aurum: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// List endpoints carry has_more next to data.
	if w, ok := dest.(wholeBody); ok {
		return json.Unmarshal(bodyBytes, w.v)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("aurum: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
