package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	policiesURI         = "aurum://guardrails/policies"
	conversationURIBase = "aurum://conversation/"
)

func (s *Server) registerResources() {
	// aurum://guardrails/policies: the tenant's effective guardrail policies.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			policiesURI,
			"Guardrail Policies",
			mcplib.WithResourceDescription("Effective guardrail policies of the tenant, defaults included"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePolicies,
	)

	// aurum://conversation/{contact_id}: one customer's conversation state.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			conversationURIBase+"{contact_id}",
			"Conversation",
			mcplib.WithTemplateDescription("Stage, collected entities and timeline of one customer conversation"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleConversation,
	)
}

func (s *Server) handlePolicies(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("mcp: policies: tenant is required")
	}
	policies, err := s.chat.Policies(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("mcp: policies: %w", err)
	}
	return jsonResource(policiesURI, policies)
}

func (s *Server) handleConversation(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("mcp: conversation: tenant is required")
	}
	uri := request.Params.URI
	contactID := strings.TrimPrefix(uri, conversationURIBase)
	if contactID == "" || contactID == uri {
		return nil, fmt.Errorf("mcp: conversation: invalid URI %q", uri)
	}
	st, err := s.chat.Conversation(ctx, tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("mcp: conversation: %w", err)
	}
	return jsonResource(uri, st)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
