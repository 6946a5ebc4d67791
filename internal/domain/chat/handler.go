// Package chat exposes a thin passthrough over the upstream chat-completion
// gateway for callers that manage their own conversation state.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/platform/llm"
)

// ModelCaller is the gateway surface the passthrough needs: a plain Chat and
// an override that pins a specific model.
type ModelCaller interface {
	llm.Gateway
	ChatWithModels(ctx context.Context, models []string, messages []llm.Message, opts llm.Options) (string, error)
}

type Handler struct {
	gateway ModelCaller
}

func NewHandler(gateway ModelCaller) *Handler {
	return &Handler{gateway: gateway}
}

// RegisterRoutes mounts the chat route on the given API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ai/chat", h.Chat)
}

type chatRequest struct {
	Messages    []llm.Message `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "malformed request body")
	}
	if len(req.Messages) == 0 {
		return fail(c, http.StatusBadRequest, "messages is required")
	}
	for _, m := range req.Messages {
		if !validRole(m.Role) {
			return fail(c, http.StatusBadRequest, "invalid message role: "+m.Role)
		}
	}

	opts := llm.Options{Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	var text string
	var err error
	if req.Model != "" {
		text, err = h.gateway.ChatWithModels(c.Request().Context(), []string{req.Model}, req.Messages, opts)
	} else {
		text, err = h.gateway.Chat(c.Request().Context(), req.Messages, opts)
	}
	if err != nil {
		var authErr *llm.AuthError
		if errors.As(err, &authErr) {
			return fail(c, http.StatusUnauthorized, "upstream rejected API credentials")
		}
		if errors.Is(err, llm.ErrMissingAPIKey) {
			return fail(c, http.StatusInternalServerError, "chat API key is not configured")
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":   true,
		"text": text,
		"raw":  text,
	})
}

func validRole(role string) bool {
	switch strings.ToLower(role) {
	case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		return true
	}
	return false
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{"ok": false, "error": msg})
}
