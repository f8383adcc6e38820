package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/chat"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
	"github.com/aurum-labs/aurum/internal/storage"
)

// fakeChat records calls and returns canned results.
type fakeChat struct {
	tenant     uuid.UUID
	since      time.Time
	update     model.UpdatePolicyRequest
	updateType string
	evaluate   model.EvaluateDraftRequest
	err        error
}

func (f *fakeChat) ProcessMessage(_ context.Context, tenantID uuid.UUID, contactID, text string) (model.Reply, error) {
	f.tenant = tenantID
	if f.err != nil {
		return model.Reply{}, f.err
	}
	if contactID == "" || text == "" {
		return model.Reply{}, fmt.Errorf("%w: contact_id is required", chat.ErrInvalidInput)
	}
	return model.Reply{Text: "Olá! Seja bem-vindo.", Stage: model.StageWelcome, Intent: model.IntentGreeting, Confidence: 0.85}, nil
}

func (f *fakeChat) Conversation(_ context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error) {
	f.tenant = tenantID
	if contactID == "missing" {
		return model.ConversationState{}, storage.ErrNotFound
	}
	return model.ConversationState{TenantID: tenantID, ContactID: contactID, Stage: model.StageDiscovery, InteractionCount: 2}, nil
}

func (f *fakeChat) EvaluateDraft(_ context.Context, tenantID uuid.UUID, req model.EvaluateDraftRequest) (guardrails.Result, error) {
	f.tenant = tenantID
	f.evaluate = req
	if err := req.Validate(); err != nil {
		return guardrails.Result{}, fmt.Errorf("%w: %v", chat.ErrInvalidInput, err)
	}
	return guardrails.Result{IsValid: true, Guardrails: []model.GuardrailCheck{}}, nil
}

func (f *fakeChat) Stats(_ context.Context, tenantID uuid.UUID, since time.Time) (model.GuardrailStats, error) {
	f.tenant = tenantID
	f.since = since
	if f.err != nil {
		return model.GuardrailStats{}, f.err
	}
	return model.GuardrailStats{Total: 10, Triggered: 3}, nil
}

func (f *fakeChat) Policies(_ context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error) {
	f.tenant = tenantID
	return []model.GuardrailPolicy{{TenantID: tenantID, PolicyType: model.PolicyConfidence, Enabled: true, ThresholdValue: 0.7}}, nil
}

func (f *fakeChat) UpdatePolicy(_ context.Context, tenantID uuid.UUID, policyType string, req model.UpdatePolicyRequest) (model.GuardrailPolicy, error) {
	f.tenant = tenantID
	f.updateType = policyType
	f.update = req
	if policyType == string(model.PolicySensitiveInfo) && req.Enabled != nil && !*req.Enabled {
		return model.GuardrailPolicy{}, fmt.Errorf("%w: sensitive_info cannot be disabled", guardrails.ErrInvalidPolicy)
	}
	p := req.Apply(model.GuardrailPolicy{TenantID: tenantID, PolicyType: model.PolicyType(policyType), Enabled: true, ThresholdValue: 0.7})
	return p, nil
}

var testTenant = uuid.MustParse("7b6f3c1e-2d4a-4f7e-9a1b-0c5d8e2f4a6b")

func newTestServer() (*Server, *fakeChat) {
	f := &fakeChat{}
	return New(f, slog.New(slog.DiscardHandler), "test"), f
}

func tenantCtx() context.Context {
	return ctxutil.WithTenantID(context.Background(), testTenant)
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestToolsRequireTenant(t *testing.T) {
	s, _ := newTestServer()
	handlers := map[string]func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
		"aurum_process_message": s.handleProcessMessage,
		"aurum_guardrail_stats": s.handleGuardrailStats,
		"aurum_update_policy":   s.handleUpdatePolicy,
		"aurum_evaluate_draft":  s.handleEvaluateDraft,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			result, err := h(context.Background(), toolRequest(name, map[string]any{}))
			require.NoError(t, err, "handler should not return go error, only tool error")
			require.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), "tenant is required")
		})
	}
}

func TestHandleProcessMessage(t *testing.T) {
	s, f := newTestServer()

	result, err := s.handleProcessMessage(tenantCtx(), toolRequest("aurum_process_message", map[string]any{
		"contact_id": "5511999990000",
		"text":       "oi",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
	assert.Equal(t, testTenant, f.tenant)

	var reply model.Reply
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &reply))
	assert.Equal(t, model.StageWelcome, reply.Stage)
	assert.Equal(t, model.IntentGreeting, reply.Intent)
}

func TestHandleProcessMessage_InvalidInput(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleProcessMessage(tenantCtx(), toolRequest("aurum_process_message", map[string]any{"text": "oi"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "contact_id is required")
}

func TestHandleGuardrailStats(t *testing.T) {
	s, f := newTestServer()

	t.Run("since wins over days", func(t *testing.T) {
		result, err := s.handleGuardrailStats(tenantCtx(), toolRequest("aurum_guardrail_stats", map[string]any{
			"since": "2026-01-01T00:00:00Z",
			"days":  30,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.since.UTC())

		var stats model.GuardrailStats
		require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &stats))
		assert.Equal(t, 10, stats.Total)
	})

	t.Run("days", func(t *testing.T) {
		_, err := s.handleGuardrailStats(tenantCtx(), toolRequest("aurum_guardrail_stats", map[string]any{"days": 30}))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), f.since, time.Minute)
	})

	t.Run("default window", func(t *testing.T) {
		_, err := s.handleGuardrailStats(tenantCtx(), toolRequest("aurum_guardrail_stats", map[string]any{}))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, -defaultStatsDays), f.since, time.Minute)
	})

	t.Run("bad since", func(t *testing.T) {
		result, err := s.handleGuardrailStats(tenantCtx(), toolRequest("aurum_guardrail_stats", map[string]any{"since": "yesterday"}))
		require.NoError(t, err)
		require.True(t, result.IsError)
		assert.Contains(t, parseToolText(t, result), "RFC3339")
	})
}

func TestHandleGuardrailStats_InternalErrorHidden(t *testing.T) {
	s, f := newTestServer()
	f.err = errors.New("storage: stats: connection reset by peer")

	result, err := s.handleGuardrailStats(tenantCtx(), toolRequest("aurum_guardrail_stats", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	text := parseToolText(t, result)
	assert.Equal(t, "guardrail stats failed", text)
	assert.NotContains(t, text, "connection reset")
}

func TestHandleUpdatePolicy_OnlySentFieldsChange(t *testing.T) {
	s, f := newTestServer()

	result, err := s.handleUpdatePolicy(tenantCtx(), toolRequest("aurum_update_policy", map[string]any{
		"policy_type":     "confidence",
		"threshold_value": 0.55,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	assert.Equal(t, "confidence", f.updateType)
	require.NotNil(t, f.update.ThresholdValue)
	assert.InDelta(t, 0.55, *f.update.ThresholdValue, 1e-9)
	assert.Nil(t, f.update.Enabled)
	assert.Nil(t, f.update.FallbackMessage)
	assert.Nil(t, f.update.HandoffTrigger)
	assert.Nil(t, f.update.Metadata)

	var p model.GuardrailPolicy
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &p))
	assert.InDelta(t, 0.55, p.ThresholdValue, 1e-9)
	assert.True(t, p.Enabled)
}

func TestHandleUpdatePolicy_Metadata(t *testing.T) {
	s, f := newTestServer()

	_, err := s.handleUpdatePolicy(tenantCtx(), toolRequest("aurum_update_policy", map[string]any{
		"policy_type": "validation",
		"metadata":    map[string]any{"max_price": 50000.0, "forbidden_terms": []any{"grátis"}},
	}))
	require.NoError(t, err)
	require.NotNil(t, f.update.Metadata)
	assert.Equal(t, 50000.0, f.update.Metadata["max_price"])
}

func TestHandleUpdatePolicy_Errors(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name    string
		args    map[string]any
		errText string
	}{
		{
			name:    "missing policy_type",
			args:    map[string]any{"enabled": true},
			errText: "policy_type is required",
		},
		{
			name:    "sensitive info cannot be disabled",
			args:    map[string]any{"policy_type": "sensitive_info", "enabled": false},
			errText: "cannot be disabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleUpdatePolicy(tenantCtx(), toolRequest("aurum_update_policy", tt.args))
			require.NoError(t, err)
			require.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), tt.errText)
		})
	}
}

func TestHandleEvaluateDraft(t *testing.T) {
	s, f := newTestServer()

	result, err := s.handleEvaluateDraft(tenantCtx(), toolRequest("aurum_evaluate_draft", map[string]any{
		"intent":     "price_inquiry",
		"confidence": 0.92,
		"draft":      "A aliança sai por R$ 4.500,00",
		"product_id": "alianca-ouro-18k",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	assert.Equal(t, model.IntentPriceInquiry, f.evaluate.Intent)
	assert.InDelta(t, 0.92, f.evaluate.Confidence, 1e-9)
	assert.Equal(t, "alianca-ouro-18k", f.evaluate.ProductID)

	var res guardrails.Result
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &res))
	assert.True(t, res.IsValid)
}

func TestHandleEvaluateDraft_MissingDraft(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleEvaluateDraft(tenantCtx(), toolRequest("aurum_evaluate_draft", map[string]any{
		"intent":     "price_inquiry",
		"confidence": 0.9,
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "draft is required")
}
