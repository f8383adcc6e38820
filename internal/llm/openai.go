package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIDefaultURL = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAI creates a client. An empty baseURL means api.openai.com.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = openAIDefaultURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClientFor(timeout),
	}
}

func (c *OpenAI) Name() string { return "openai" }

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []chatMessage         `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request.
func (c *OpenAI) Complete(ctx context.Context, r Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := openAIChatRequest{
		Model:    c.model,
		Messages: messagesFor(r),
	}
	if r.JSON {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return "", &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(respBody)}
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

func messagesFor(r Request) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if r.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: r.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: r.User})
}
