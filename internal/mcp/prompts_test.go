package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptText(t *testing.T, result *mcplib.GetPromptResult) string {
	t.Helper()
	require.NotEmpty(t, result.Messages, "expected at least one message")
	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)
	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	return tc.Text
}

func TestNewRegistersServer(t *testing.T) {
	s, _ := newTestServer()
	assert.NotNil(t, s.MCPServer())
}

func TestTuneGuardrailsPrompt(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleTuneGuardrailsPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "tune-guardrails",
			Arguments: map[string]string{"days": "30"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Description, "30")

	text := promptText(t, result)
	assert.Contains(t, text, "aurum_guardrail_stats with days=30")
	assert.Contains(t, text, policiesURI)
	assert.Contains(t, text, "aurum_update_policy")
}

func TestTuneGuardrailsPrompt_DefaultDays(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleTuneGuardrailsPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "tune-guardrails"},
	})
	require.NoError(t, err)
	assert.Contains(t, promptText(t, result), "days=7")
}

func TestTestDraftPrompt(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleTestDraftPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "test-draft",
			Arguments: map[string]string{"draft": "Temos alianças a partir de R$ 1.200", "intent": "price_inquiry"},
		},
	})
	require.NoError(t, err)
	text := promptText(t, result)
	assert.Contains(t, text, `intent="price_inquiry"`)
	assert.Contains(t, text, "Temos alianças a partir de R$ 1.200")
}

func TestTestDraftPrompt_MissingArguments(t *testing.T) {
	s, _ := newTestServer()

	_, err := s.handleTestDraftPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "test-draft",
			Arguments: map[string]string{"draft": "x"},
		},
	})
	assert.Error(t, err)
}
