// Package mcp implements the Model Context Protocol server for Aurum.
//
// The MCP server exposes the store operator's side of the HTTP API (the
// conversation pipeline, guardrail analytics and policy administration)
// through MCP tools, resources and prompts, so an assistant can inspect and
// tune a tenant's chatbot.
package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
)

// ChatService is the subset of chat.Service the tools call.
type ChatService interface {
	ProcessMessage(ctx context.Context, tenantID uuid.UUID, contactID, text string) (model.Reply, error)
	Conversation(ctx context.Context, tenantID uuid.UUID, contactID string) (model.ConversationState, error)
	EvaluateDraft(ctx context.Context, tenantID uuid.UUID, req model.EvaluateDraftRequest) (guardrails.Result, error)
	Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (model.GuardrailStats, error)
	Policies(ctx context.Context, tenantID uuid.UUID) ([]model.GuardrailPolicy, error)
	UpdatePolicy(ctx context.Context, tenantID uuid.UUID, policyType string, req model.UpdatePolicyRequest) (model.GuardrailPolicy, error)
}

// Server wraps the MCP server with Aurum's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	chat      ChatService
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, prompts
// and tools.
func New(chat ChatService, logger *slog.Logger, version string) *Server {
	s := &Server{
		chat:   chat,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"aurum",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerPrompts()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const serverInstructions = `Aurum runs the sales chatbot of jewelry stores.
Every call acts on the tenant named by the X-Tenant-ID header of the MCP connection.
Use aurum_guardrail_stats to see why the bot falls back or hands customers to a specialist,
aurum_evaluate_draft to try a reply against the guardrails without side effects,
and aurum_update_policy to tune thresholds and fallback messages.
aurum_process_message sends a real customer message through the full pipeline.`

// tenantFrom returns the tenant resolved by the HTTP layer.
func tenantFrom(ctx context.Context) (uuid.UUID, bool) {
	id := ctxutil.TenantIDFromContext(ctx)
	return id, id != uuid.Nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
