package aurum

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testTenant = uuid.MustParse("7b0c51a2-3f1e-4a8e-9d3c-2f4b5a6c7d8e")

// mockServer creates an httptest server that mimics the Aurum API and
// rejects requests without the tenant header.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		handler := handler
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Tenant-ID") != testTenant.String() {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"code": "INVALID_INPUT", "message": "X-Tenant-ID header is required"},
				})
				return
			}
			handler(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:  serverURL + "/",
		TenantID: testTenant,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{TenantID: testTenant}); err == nil {
		t.Error("expected error for missing BaseURL")
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost:8080"}); err == nil {
		t.Error("expected error for missing TenantID")
	}
}

func TestProcessMessage(t *testing.T) {
	decisionID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/messages": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["contact_id"] != "5511999990001" || body["text"] != "quanto custa uma aliança?" {
				t.Errorf("unexpected body: %v", body)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": Reply{
					Text:           "Vou confirmar o valor atualizado dessa peça com um de nossos especialistas.",
					Stage:          "price_discussion",
					Intent:         "price_inquiry",
					Confidence:     0.9,
					HandoffOffered: true,
					DecisionID:     &decisionID,
					Interactive: &Interactive{Kind: "buttons", Options: []InteractiveOption{
						{ID: ChoiceSpecialist, Label: "Falar com especialista"},
						{ID: ChoiceAssistant, Label: "Continuar aqui"},
					}},
				},
				"meta": map[string]any{"request_id": "req-1"},
			})
		},
	})

	reply, err := newTestClient(t, srv.URL).ProcessMessage(context.Background(), "5511999990001", "quanto custa uma aliança?")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !reply.HandoffOffered || reply.DecisionID == nil || *reply.DecisionID != decisionID {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.Interactive == nil || len(reply.Interactive.Options) != 2 {
		t.Fatalf("expected two buttons, got %+v", reply.Interactive)
	}
	if reply.Interactive.Options[0].ID != ChoiceSpecialist {
		t.Errorf("first option = %q, want %q", reply.Interactive.Options[0].ID, ChoiceSpecialist)
	}
}

func TestProcessMessageRateLimited(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/messages": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"code": "RATE_LIMITED", "message": "too many messages, slow down"},
			})
		},
	})

	_, err := newTestClient(t, srv.URL).ProcessMessage(context.Background(), "5511999990001", "oi")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "RATE_LIMITED" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecordHandoffChoiceConflict(t *testing.T) {
	decisionID := uuid.New()
	calls := 0
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/decisions/{id}/choice": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != decisionID.String() {
				t.Errorf("unexpected id %q", r.PathValue("id"))
			}
			calls++
			if calls > 1 {
				writeJSON(w, http.StatusConflict, map[string]any{
					"error": map[string]any{"code": "CONFLICT", "message": "record choice: already recorded"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"decision_id": decisionID, "user_choice": ChoiceSpecialist},
			})
		},
	})
	c := newTestClient(t, srv.URL)

	if err := c.RecordHandoffChoice(context.Background(), decisionID, ChoiceSpecialist); err != nil {
		t.Fatalf("first choice: %v", err)
	}
	if err := c.RecordHandoffChoice(context.Background(), decisionID, ChoiceAssistant); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConversationNotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/conversations/{contact_id}": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "conversation: not found"},
			})
		},
	})

	_, err := newTestClient(t, srv.URL).Conversation(context.Background(), "5511999990009")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMessagesPaging(t *testing.T) {
	before := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/conversations/{contact_id}/messages": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("before") != "2026-03-01T12:00:00Z" || q.Get("limit") != "2" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []Message{
					{ID: uuid.New(), Content: "oi", Sender: "user"},
					{ID: uuid.New(), Content: "Olá! Bem-vindo(a).", Sender: "bot"},
				},
				"has_more": true,
				"limit":    2,
			})
		},
	})

	page, err := newTestClient(t, srv.URL).Messages(context.Background(), "5511999990001", &MessagesOptions{Before: before, Limit: 2})
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Messages[0].Sender != "user" {
		t.Errorf("messages should be oldest first, got %q", page.Messages[0].Sender)
	}
}

func TestUpdatePolicySendsOnlySetFields(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PUT /v1/guardrails/policies/{type}": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body) != 1 || body["threshold_value"] != 0.8 {
				t.Errorf("unexpected body: %v", body)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": Policy{PolicyType: r.PathValue("type"), Enabled: true, ThresholdValue: 0.8},
			})
		},
	})

	threshold := 0.8
	p, err := newTestClient(t, srv.URL).UpdatePolicy(context.Background(), PolicyConfidence, PolicyUpdate{ThresholdValue: &threshold})
	if err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	if p.PolicyType != PolicyConfidence || p.ThresholdValue != 0.8 {
		t.Errorf("unexpected policy: %+v", p)
	}
}

func TestStatsSince(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/guardrails/stats": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("since") != "2026-01-01T00:00:00Z" {
				t.Errorf("unexpected since %q", r.URL.Query().Get("since"))
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": GuardrailStats{
					Since: since, Total: 10, Triggered: 3, FallbackUsed: 3, HandoffOffered: 2,
					TopTriggers: []TriggerCount{{Reason: "price_missing", Count: 2}},
				},
			})
		},
	})

	stats, err := newTestClient(t, srv.URL).Stats(context.Background(), since)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 10 || len(stats.TopTriggers) != 1 || stats.TopTriggers[0].Reason != "price_missing" {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestEvaluateDraft(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/guardrails/evaluate": func(w http.ResponseWriter, r *http.Request) {
			var req DraftEvaluation
			_ = json.NewDecoder(r.Body).Decode(&req)
			reason := "sensitive_info"
			writeJSON(w, http.StatusOK, map[string]any{
				"data": EvaluationResult{
					IsValid:         false,
					RequiresHandoff: true,
					SafeResponse:    "Por segurança, não compartilhe dados pessoais por aqui.",
					Reason:          &reason,
				},
			})
		},
	})

	res, err := newTestClient(t, srv.URL).EvaluateDraft(context.Background(), DraftEvaluation{
		Intent: "general_inquiry", Confidence: 0.9, Draft: "Me passe sua senha",
	})
	if err != nil {
		t.Fatalf("EvaluateDraft: %v", err)
	}
	if res.IsValid || res.Reason == nil || *res.Reason != "sensitive_info" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/guardrails/policies": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		},
	})

	_, err := newTestClient(t, srv.URL).Policies(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream unavailable" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
