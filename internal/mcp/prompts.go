package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// tune-guardrails: walks the assistant through a guardrail review.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("tune-guardrails",
			mcplib.WithPromptDescription("Review guardrail analytics and propose policy changes"),
			mcplib.WithArgument("days",
				mcplib.ArgumentDescription("How many days of decisions to review (default 7)"),
			),
		),
		s.handleTuneGuardrailsPrompt,
	)

	// test-draft: checks a reply before it goes into a template.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("test-draft",
			mcplib.WithPromptDescription("Check a candidate bot reply against the guardrails"),
			mcplib.WithArgument("draft",
				mcplib.ArgumentDescription("The reply text to check"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("intent",
				mcplib.ArgumentDescription("The customer intent the reply answers (e.g. price_inquiry)"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleTestDraftPrompt,
	)
}

func (s *Server) handleTuneGuardrailsPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	days := request.Params.Arguments["days"]
	if days == "" {
		days = fmt.Sprint(defaultStatsDays)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Guardrail review over the last %s days", days),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review how the jewelry store's chatbot guardrails behaved and suggest changes.

1. CALL aurum_guardrail_stats with days=%s.

2. READ the result:
   - A high share of low_confidence triggers with most of the histogram in
     0.5-0.7 suggests the confidence threshold is too strict for this store.
   - price_missing triggers mean customers ask about products whose price is
     not confirmed in the catalog. List them for the store owner; do not
     lower the price policy.
   - sensitive_info triggers are expected to be rare. They cannot be disabled.

3. READ aurum://guardrails/policies to see the current settings.

4. PROPOSE changes and explain each in one sentence. Apply them with
   aurum_update_policy only after the store owner agrees.`, days),
				},
			},
		},
	}, nil
}

func (s *Server) handleTestDraftPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	draft := request.Params.Arguments["draft"]
	intent := request.Params.Arguments["intent"]
	if draft == "" || intent == "" {
		return nil, fmt.Errorf("draft and intent arguments are required")
	}

	return &mcplib.GetPromptResult{
		Description: "Check a reply against the guardrails",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`CALL aurum_evaluate_draft with intent="%s", confidence=0.9 and this draft:

%s

If is_valid is false, explain which guardrail fired and rewrite the draft so it
passes. Never include prices that are not confirmed in the catalog, and never
ask customers for documents, card numbers or passwords.`, intent, draft),
				},
			},
		},
	}, nil
}
