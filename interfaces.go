package aurum

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// LanguageModel is a chat-completion backend.
// When provided via WithLanguageModel, replaces the OpenAI/Ollama/noop client
// selected from config. It is used by the intent classifier and the response
// relevance check. Complete makes one attempt; aurum retries transient errors.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// PriceCatalog answers price questions for a tenant's products.
// When provided via WithPriceCatalog, replaces the built-in catalog backed by
// the products table. productRef is a product id, product name, or jewelry
// type, in that order of preference.
type PriceCatalog interface {
	LookupPrice(ctx context.Context, tenantID uuid.UUID, productRef string) (ProductPrice, error)
}

// HandoffHook receives conversations escalated to a human specialist.
// Multiple hooks may be registered via multiple WithHandoffHook calls.
// Hooks run in goroutines with a timeout (AURUM_HANDOFF_HOOK_TIMEOUT) and only
// when NOTIFY_URL is configured. Failures are logged and never affect the
// customer reply.
type HandoffHook interface {
	OnHandoff(ctx context.Context, h Handoff) error
}

// Middleware wraps the HTTP handler, e.g. for authentication in front of aurum.
type Middleware func(http.Handler) http.Handler
