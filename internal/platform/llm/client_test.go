package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(serverURL string, models ...string) *Client {
	if len(models) == 0 {
		models = []string{"model-a"}
	}
	return NewClient(ClientConfig{
		BaseURL: serverURL,
		APIKey:  "sk-test",
		Models:  models,
	})
}

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer credential")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream:false")
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}

		w.Write([]byte(completionBody(`{"question":"How long?","done":false}`)))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "fever"},
	}, Options{Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"question":"How long?","done":false}` {
		t.Errorf("unexpected content: %s", out)
	}
}

func TestChat_MissingAPIKey(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost", Models: []string{"m"}})
	_, err := c.Chat(context.Background(), nil, Options{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestChat_FallsBackToNextModel(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)

		if req.Model == "model-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	out, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("unexpected content: %s", out)
	}
	if len(models) != 2 || models[0] != "model-a" || models[1] != "model-b" {
		t.Errorf("expected fallback order [model-a model-b], got %v", models)
	}
}

func TestChat_AuthErrorStopsFallback(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b", "model-c")
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", authErr.Status)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", calls)
	}
}

func TestChat_AllModelsExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b", "model-c")
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", gwErr.Attempts)
	}
	if gwErr.Last == nil {
		t.Error("expected last error to be carried")
	}
	if calls != 3 {
		t.Errorf("expected 3 upstream calls, got %d", calls)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError for empty choices, got %v", err)
	}
}

func TestChat_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	_, err := c.Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
