package server

import (
	"net/http"
	"time"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
)

// defaultStatsWindow is used when ?since= is omitted.
const defaultStatsWindow = 7 * 24 * time.Hour

// HandleListPolicies handles GET /v1/guardrails/policies.
func (h *Handlers) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	tenantID := ctxutil.TenantIDFromContext(r.Context())
	policies, err := h.chat.Policies(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list policies", err)
		return
	}
	writeJSON(w, r, http.StatusOK, policies)
}

// HandleUpdatePolicy handles PUT /v1/guardrails/policies/{type}.
func (h *Handlers) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req model.UpdatePolicyRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	policy, err := h.chat.UpdatePolicy(r.Context(), tenantID, r.PathValue("type"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to update policy", err)
		return
	}
	h.logger.Info("guardrail policy updated",
		"tenant_id", tenantID,
		"policy_type", policy.PolicyType,
		"enabled", policy.Enabled,
		"request_id", RequestIDFromRequest(r))
	writeJSON(w, r, http.StatusOK, policy)
}

// HandleGuardrailStats handles GET /v1/guardrails/stats?since=<RFC3339>.
func (h *Handlers) HandleGuardrailStats(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	from := time.Now().Add(-defaultStatsWindow)
	if since != nil {
		from = *since
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	stats, err := h.chat.Stats(r.Context(), tenantID, from)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to compute guardrail stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleEvaluateDraft handles POST /v1/guardrails/evaluate. Nothing is
// logged or persisted.
func (h *Handlers) HandleEvaluateDraft(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateDraftRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	result, err := h.chat.EvaluateDraft(r.Context(), tenantID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to evaluate draft", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
