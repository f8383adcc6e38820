// Package llm provides the chat-completion clients used by the intent
// classifier and the response relevance scorer.
//
// Clients make exactly one HTTP call per Complete. Retrying, parsing, and
// validating the reply belong to the caller, which knows whether a reply is
// usable.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("llm: no language model configured")

// Request is one system+user exchange.
type Request struct {
	System string
	User   string
	// JSON asks the provider to constrain output to a JSON object.
	JSON bool
}

// Client is a chat-completion backend.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// StatusError is a non-200 provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

// Retriable reports whether err is worth another attempt. Client errors other
// than rate limiting will fail the same way again.
func Retriable(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// Noop is the client used when no provider is configured.
type Noop struct{}

func (Noop) Complete(context.Context, Request) (string, error) { return "", ErrNotConfigured }
func (Noop) Name() string { return "noop" }

// Config selects and configures a provider.
type Config struct {
	Provider     string // auto, openai, ollama, noop
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	OllamaURL    string
	OllamaModel  string
	Timeout      time.Duration
}

// New returns the client for cfg. In auto mode OpenAI wins when a key is set,
// then Ollama when a URL is set, else Noop.
func New(cfg Config, logger *slog.Logger) Client {
	provider := cfg.Provider
	if provider == "auto" || provider == "" {
		switch {
		case cfg.OpenAIAPIKey != "":
			provider = "openai"
		case cfg.OllamaURL != "":
			provider = "ollama"
		default:
			provider = "noop"
		}
	}

	switch provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("llm: openai selected without OPENAI_API_KEY, model features disabled")
			return Noop{}
		}
		logger.Info("llm: using openai", "model", cfg.OpenAIModel)
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIURL, cfg.Timeout)
	case "ollama":
		logger.Info("llm: using ollama", "model", cfg.OllamaModel)
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout)
	default:
		logger.Info("llm: no provider configured, keyword classification only")
		return Noop{}
	}
}

const (
	defaultTimeout  = 15 * time.Second
	maxErrBodyBytes = 1024
)

func httpClientFor(timeout time.Duration) *http.Client {
	// HTTP timeout slightly beyond the per-call context timeout.
	return &http.Client{Timeout: timeout + 5*time.Second}
}
