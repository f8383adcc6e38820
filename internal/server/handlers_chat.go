package server

import (
	"net/http"

	"github.com/aurum-labs/aurum/internal/ctxutil"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/chat"
)

// HandleProcessMessage handles POST /v1/messages.
// The reply is always 200 once input is valid: pipeline failures already
// degrade to the apology text inside the service.
func (h *Handlers) HandleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req model.ProcessMessageRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	reply, err := h.chat.ProcessMessage(r.Context(), tenantID, req.ContactID, req.Text)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to process message", err)
		return
	}
	writeJSON(w, r, http.StatusOK, reply)
}

// HandleMessageFeedback handles POST /v1/messages/{id}/feedback.
func (h *Handlers) HandleMessageFeedback(w http.ResponseWriter, r *http.Request) {
	messageID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	if err := h.chat.RecordFeedback(r.Context(), tenantID, messageID, req.Feedback); err != nil {
		writeServiceError(w, r, h.logger, "failed to record feedback", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"message_id": messageID, "feedback": "recorded"})
}

// HandleHandoffChoice handles POST /v1/decisions/{id}/choice.
func (h *Handlers) HandleHandoffChoice(w http.ResponseWriter, r *http.Request) {
	decisionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	var req model.HandoffChoiceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	if err := h.chat.RecordHandoffChoice(r.Context(), tenantID, decisionID, req.Choice); err != nil {
		writeServiceError(w, r, h.logger, "failed to record handoff choice", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"decision_id": decisionID, "user_choice": req.Choice})
}

// HandleGetConversation handles GET /v1/conversations/{contact_id}.
func (h *Handlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	tenantID := ctxutil.TenantIDFromContext(r.Context())
	st, err := h.chat.Conversation(r.Context(), tenantID, r.PathValue("contact_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get conversation", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// HandleListMessages handles GET /v1/conversations/{contact_id}/messages.
// Paging walks backwards with ?before=<RFC3339> set to the oldest timestamp
// of the previous page. A full page reports has_more.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	before, err := queryTime(r, "before")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	limit := queryLimit(r, chat.DefaultHistoryLimit, chat.MaxHistoryLimit)

	tenantID := ctxutil.TenantIDFromContext(r.Context())
	msgs, err := h.chat.Messages(r.Context(), tenantID, r.PathValue("contact_id"), before, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list messages", err)
		return
	}

	hasMore := len(msgs) == limit
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeList(w, r, msgs, limit, hasMore)
}
