package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/chat"
	"github.com/aurum-labs/aurum/internal/service/guardrails"
)

// defaultStatsDays is the stats window when neither since nor days is given.
const defaultStatsDays = 7

func (s *Server) registerTools() {
	// aurum_process_message: run a customer message through the pipeline.
	s.mcpServer.AddTool(
		mcplib.NewTool("aurum_process_message",
			mcplib.WithDescription(`Send a customer message through the full chatbot pipeline and return the reply.

WHEN TO USE: To reproduce what a customer sees, or to walk a test contact
through the sales flow. This is NOT a dry run: the conversation state,
message history and decision log of the contact are updated.

WHAT YOU GET BACK: the reply text, the conversation stage, the classified
intent with its confidence, and whether a specialist handoff was offered.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("contact_id",
				mcplib.Description("Messaging-provider identifier of the customer, e.g. a phone number"),
				mcplib.Required(),
			),
			mcplib.WithString("text",
				mcplib.Description("The customer's message, in Portuguese"),
				mcplib.Required(),
			),
		),
		s.handleProcessMessage,
	)

	// aurum_guardrail_stats: guardrail analytics.
	s.mcpServer.AddTool(
		mcplib.NewTool("aurum_guardrail_stats",
			mcplib.WithDescription(`Summarize guardrail decisions for the tenant.

WHEN TO USE: To understand how often the bot falls back to safe replies,
which guardrails fire most, and how confident intent classification is.

WHAT YOU GET BACK: totals, fallback and handoff counts, the top trigger
reasons, and a confidence histogram with buckets 0-0.3, 0.3-0.5, 0.5-0.7,
0.7-0.9 and 0.9-1.0.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("since",
				mcplib.Description("RFC3339 start of the window, e.g. 2026-01-01T00:00:00Z. Takes precedence over days."),
			),
			mcplib.WithNumber("days",
				mcplib.Description("Window length in days, counted back from now"),
				mcplib.Min(1),
				mcplib.Max(365),
				mcplib.DefaultNumber(defaultStatsDays),
			),
		),
		s.handleGuardrailStats,
	)

	// aurum_update_policy: tune a guardrail.
	s.mcpServer.AddTool(
		mcplib.NewTool("aurum_update_policy",
			mcplib.WithDescription(`Change one guardrail policy of the tenant. Omitted fields keep their value.

POLICY TYPES:
- confidence: replies below threshold_value ask the customer to confirm
- price: replies quoting an unconfirmed price are replaced and handed off
- sensitive_info: CPF, card numbers and passwords are never echoed (cannot be disabled)
- validation: response validation rules in metadata (min_length, max_length,
  forbidden_terms, min_price, max_price, min_delivery_days, max_delivery_days)

The change applies to the next message; cached policies are invalidated.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("policy_type",
				mcplib.Description("Which policy to change"),
				mcplib.Required(),
				mcplib.Enum(
					string(model.PolicyConfidence),
					string(model.PolicyPrice),
					string(model.PolicySensitiveInfo),
					string(model.PolicyValidation),
				),
			),
			mcplib.WithBoolean("enabled",
				mcplib.Description("Turn the policy on or off"),
			),
			mcplib.WithNumber("threshold_value",
				mcplib.Description("Confidence threshold (0.0-1.0)"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
			mcplib.WithString("fallback_message",
				mcplib.Description("Reply sent instead of the draft when the policy triggers"),
			),
			mcplib.WithBoolean("handoff_trigger",
				mcplib.Description("Offer a human specialist when the policy triggers"),
			),
			mcplib.WithObject("metadata",
				mcplib.Description("Policy-specific settings; replaces the stored metadata"),
			),
		),
		s.handleUpdatePolicy,
	)

	// aurum_evaluate_draft: dry-run a reply.
	s.mcpServer.AddTool(
		mcplib.NewTool("aurum_evaluate_draft",
			mcplib.WithDescription(`Check a draft reply against the tenant's guardrails without sending it.

WHEN TO USE: Before changing templates or policies, to see whether a reply
would be replaced by a fallback and why. Nothing is logged or stored.

EXAMPLE: intent="price_inquiry", confidence=0.92,
draft="A aliança sai por R$ 4.500,00", product_id="alianca-ouro-18k"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("intent",
				mcplib.Description("Classified intent of the customer message, e.g. price_inquiry"),
				mcplib.Required(),
			),
			mcplib.WithNumber("confidence",
				mcplib.Description("Classifier confidence (0.0-1.0)"),
				mcplib.Required(),
				mcplib.Min(0),
				mcplib.Max(1),
			),
			mcplib.WithString("draft",
				mcplib.Description("The reply to check"),
				mcplib.Required(),
			),
			mcplib.WithString("contact_id",
				mcplib.Description("Optional: evaluate against this contact's conversation state"),
			),
			mcplib.WithString("product_id",
				mcplib.Description("Optional: product the draft talks about, for the price check"),
			),
		),
		s.handleEvaluateDraft,
	)
}

func (s *Server) handleProcessMessage(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return errorResult("tenant is required (X-Tenant-ID header)"), nil
	}

	contactID := request.GetString("contact_id", "")
	text := request.GetString("text", "")

	reply, err := s.chat.ProcessMessage(ctx, tenantID, contactID, text)
	if err != nil {
		return s.toolError("process message", err), nil
	}
	return jsonResult(reply), nil
}

func (s *Server) handleGuardrailStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return errorResult("tenant is required (X-Tenant-ID header)"), nil
	}

	since := time.Now().AddDate(0, 0, -defaultStatsDays)
	if raw := request.GetString("since", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return errorResult("since must be RFC3339, e.g. 2026-01-01T00:00:00Z"), nil
		}
		since = t
	} else if days := request.GetInt("days", defaultStatsDays); days > 0 {
		since = time.Now().AddDate(0, 0, -days)
	}

	stats, err := s.chat.Stats(ctx, tenantID, since)
	if err != nil {
		return s.toolError("guardrail stats", err), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) handleUpdatePolicy(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return errorResult("tenant is required (X-Tenant-ID header)"), nil
	}

	policyType := request.GetString("policy_type", "")
	if policyType == "" {
		return errorResult("policy_type is required"), nil
	}

	// Only arguments that were actually sent change the policy.
	args := request.GetArguments()
	var req model.UpdatePolicyRequest
	if v, ok := args["enabled"].(bool); ok {
		req.Enabled = &v
	}
	if v, ok := args["threshold_value"].(float64); ok {
		req.ThresholdValue = &v
	}
	if v, ok := args["fallback_message"].(string); ok {
		req.FallbackMessage = &v
	}
	if v, ok := args["handoff_trigger"].(bool); ok {
		req.HandoffTrigger = &v
	}
	if v, ok := args["metadata"].(map[string]any); ok {
		req.Metadata = v
	}

	policy, err := s.chat.UpdatePolicy(ctx, tenantID, policyType, req)
	if err != nil {
		return s.toolError("update policy", err), nil
	}
	s.logger.Info("mcp: guardrail policy updated", "tenant_id", tenantID, "policy_type", policy.PolicyType)
	return jsonResult(policy), nil
}

func (s *Server) handleEvaluateDraft(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenantID, ok := tenantFrom(ctx)
	if !ok {
		return errorResult("tenant is required (X-Tenant-ID header)"), nil
	}

	req := model.EvaluateDraftRequest{
		ContactID:  request.GetString("contact_id", ""),
		Intent:     model.Intent(request.GetString("intent", "")),
		Confidence: request.GetFloat("confidence", 0),
		Draft:      request.GetString("draft", ""),
		ProductID:  request.GetString("product_id", ""),
	}

	result, err := s.chat.EvaluateDraft(ctx, tenantID, req)
	if err != nil {
		return s.toolError("evaluate draft", err), nil
	}
	return jsonResult(result), nil
}

// toolError reports caller mistakes verbatim. Internal errors are logged and
// hidden from the client.
func (s *Server) toolError(op string, err error) *mcplib.CallToolResult {
	if errors.Is(err, chat.ErrInvalidInput) || errors.Is(err, guardrails.ErrInvalidPolicy) {
		return errorResult(err.Error())
	}
	s.logger.Error("mcp: tool failed", "op", op, "error", err)
	return errorResult(fmt.Sprintf("%s failed", op))
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
