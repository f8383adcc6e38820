package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
)

func readRequest(uri string) mcplib.ReadResourceRequest {
	return mcplib.ReadResourceRequest{Params: mcplib.ReadResourceParams{URI: uri}}
}

func resourceText(t *testing.T, contents []mcplib.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok, "expected TextResourceContents")
	assert.Equal(t, "application/json", tc.MIMEType)
	return tc.Text
}

func TestPoliciesResource(t *testing.T) {
	s, f := newTestServer()

	contents, err := s.handlePolicies(tenantCtx(), readRequest(policiesURI))
	require.NoError(t, err)
	assert.Equal(t, testTenant, f.tenant)

	var policies []model.GuardrailPolicy
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &policies))
	require.Len(t, policies, 1)
	assert.Equal(t, model.PolicyConfidence, policies[0].PolicyType)
}

func TestConversationResource(t *testing.T) {
	s, _ := newTestServer()

	contents, err := s.handleConversation(tenantCtx(), readRequest("aurum://conversation/5511999990000"))
	require.NoError(t, err)

	var st model.ConversationState
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &st))
	assert.Equal(t, "5511999990000", st.ContactID)
	assert.Equal(t, model.StageDiscovery, st.Stage)
}

func TestConversationResource_Errors(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name string
		ctx  context.Context
		uri  string
	}{
		{name: "no tenant", ctx: context.Background(), uri: "aurum://conversation/5511"},
		{name: "empty contact", ctx: tenantCtx(), uri: "aurum://conversation/"},
		{name: "wrong scheme", ctx: tenantCtx(), uri: "other://conversation/5511"},
		{name: "unknown contact", ctx: tenantCtx(), uri: "aurum://conversation/missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleConversation(tt.ctx, readRequest(tt.uri))
			assert.Error(t, err)
		})
	}
}
