// Package llm is the boundary to the upstream chat-completion API. The
// client is stateless: every call resends the full conversation and returns
// the raw text content of the first choice. Reliability is handled by an
// ordered fallback list of model identifiers, not by retry loops.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is a single role-tagged turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options tunes a single chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// AuthError indicates the upstream rejected the configured credential.
// It is terminal: no fallback model is attempted, since every model would
// fail the same way and burn quota on doomed requests.
type AuthError struct {
	Model  string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream rejected credential (model %s, status %d)", e.Model, e.Status)
}

// GatewayError indicates every model in the fallback list failed. It carries
// the last underlying error.
type GatewayError struct {
	Attempts int
	Last     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("all %d models failed: %v", e.Attempts, e.Last)
}

func (e *GatewayError) Unwrap() error { return e.Last }

// ErrMissingAPIKey is returned before any network call when no credential is
// configured.
var ErrMissingAPIKey = errors.New("chat API key is not configured")

// Gateway sends a conversation to a chat-completion endpoint and returns the
// raw text reply.
type Gateway interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ClientConfig holds the settings for the upstream client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Models is the ordered fallback list; the first entry is the default.
	Models  []string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 60 seconds.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		models:  cfg.Models,
		client:  &http.Client{Timeout: timeout},
	}
}

// Models returns a copy of the configured fallback list.
func (c *Client) Models() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// Wire types for the upstream API.

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends the conversation using the configured fallback list.
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	return c.ChatWithModels(ctx, c.models, messages, opts)
}

// ChatWithModels sends the conversation, trying each model identifier in
// order. A credential rejection aborts immediately with *AuthError; any
// other failure moves on to the next model. When the list is exhausted the
// last error is wrapped in *GatewayError. One call per model, no backoff.
func (c *Client) ChatWithModels(ctx context.Context, models []string, messages []Message, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if len(models) == 0 {
		models = c.models
	}
	if len(models) == 0 {
		return "", errors.New("no model identifiers configured")
	}

	var lastErr error
	for _, model := range models {
		content, err := c.complete(ctx, model, messages, opts)
		if err == nil {
			return content, nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			return "", err
		}

		lastErr = err
	}

	return "", &GatewayError{Attempts: len(models), Last: lastErr}
}

// complete performs a single chat-completion call against one model.
func (c *Client) complete(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("model %s: read response: %w", model, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Model: model, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model %s: upstream status %d: %s", model, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("model %s: decode response: %w", model, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model %s: response has no choices", model)
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
