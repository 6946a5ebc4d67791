package interview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/llm"
)

func newTestServer(gw llm.Gateway) (*echo.Echo, *MemoryStore) {
	store := NewMemoryStore(time.Minute)
	svc := NewService(store, gw, nil, DefaultTuning(), zerolog.Nop())
	h := NewHandler(svc)

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, store
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStartEndpoint_Success(t *testing.T) {
	gw := &mockGateway{replies: []string{`{"question":"What hurts?","done":false}`}}
	e, store := newTestServer(gw)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"context":"30yo female, headache","language":"en"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK        bool   `json:"ok"`
		SessionID string `json:"sessionId"`
		Question  string `json:"question"`
		Done      bool   `json:"done"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.OK || resp.SessionID == "" || resp.Question != "What hurts?" || resp.Done {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestStartEndpoint_RequiresContext(t *testing.T) {
	e, store := newTestServer(&mockGateway{})
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"context":"  "}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "context is required")
}

func TestNextEndpoint_RoundTrip(t *testing.T) {
	gw := &mockGateway{replies: []string{
		`{"question":"First?","done":false}`,
		`{"question":"Second?","done":false}`,
	}}
	e, store := newTestServer(gw)
	defer store.Close()

	start := postJSON(e, "/api/v1/ai/interview/start", `{"context":"ctx"}`)
	var started struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(start.Body.Bytes(), &started)

	rec := postJSON(e, "/api/v1/ai/interview/next",
		`{"sessionId":"`+started.SessionID+`","answer":"two days"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK       bool   `json:"ok"`
		Question string `json:"question"`
		Done     bool   `json:"done"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.OK || resp.Question != "Second?" || resp.Done {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestNextEndpoint_UnknownSession(t *testing.T) {
	e, store := newTestServer(&mockGateway{})
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/next", `{"sessionId":"ghost","answer":"hi"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "invalid sessionId")
}

func TestNextEndpoint_MissingSessionID(t *testing.T) {
	e, store := newTestServer(&mockGateway{})
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/next", `{"answer":"hi"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "invalid sessionId")
}

func TestReportEndpoint_Success(t *testing.T) {
	gw := &mockGateway{replies: []string{
		`{"question":"First?","done":false}`,
		`{"report":"## Chief Complaint\nHeadache"}`,
	}}
	e, store := newTestServer(gw)
	defer store.Close()

	start := postJSON(e, "/api/v1/ai/interview/start", `{"context":"ctx"}`)
	var started struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(start.Body.Bytes(), &started)

	rec := postJSON(e, "/api/v1/ai/interview/report", `{"sessionId":"`+started.SessionID+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK     bool   `json:"ok"`
		Report string `json:"report"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.OK || !strings.Contains(resp.Report, "Chief Complaint") {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestReportEndpoint_UnknownSession(t *testing.T) {
	e, store := newTestServer(&mockGateway{})
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/report", `{"sessionId":"ghost"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "invalid sessionId")
}

func TestEndpoints_AuthErrorMapsTo401(t *testing.T) {
	gw := &mockGateway{err: &llm.AuthError{Model: "gpt-4o-mini", Status: 401}}
	e, store := newTestServer(gw)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"context":"ctx"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.OK || resp.Error == "" {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestEndpoints_GatewayErrorMapsTo500(t *testing.T) {
	gw := &mockGateway{err: &llm.GatewayError{Attempts: 3, Last: context.DeadlineExceeded}}
	e, store := newTestServer(gw)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"context":"ctx"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestEndpoints_MissingKeyMapsTo500(t *testing.T) {
	gw := &mockGateway{err: llm.ErrMissingAPIKey}
	e, store := newTestServer(gw)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"context":"ctx"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "chat API key is not configured")
}

type stubContextSource struct {
	id      uuid.UUID
	summary string
}

func (s *stubContextSource) BuildInterviewContext(_ context.Context, patientID uuid.UUID) (string, error) {
	if patientID != s.id {
		return "", errors.New("not found")
	}
	return s.summary, nil
}

func newPatientTestServer(gw llm.Gateway, src ContextSource) (*echo.Echo, *MemoryStore) {
	store := NewMemoryStore(time.Minute)
	svc := NewService(store, gw, nil, DefaultTuning(), zerolog.Nop())
	h := NewHandler(svc).WithContextSource(src)

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, store
}

func TestStartEndpoint_PatientIDResolvesContext(t *testing.T) {
	pid := uuid.New()
	src := &stubContextSource{id: pid, summary: "Patient: Karim Uddin, 45 years old, male."}
	gw := &mockGateway{replies: []string{`{"question":"What brings you in?","done":false}`}}
	e, store := newPatientTestServer(gw, src)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"patientId":"`+pid.String()+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gw.calls))
	}
	opening := gw.calls[0].messages[1]
	if opening.Role != llm.RoleUser || opening.Content != src.summary {
		t.Errorf("expected resolved patient summary as opening turn, got %+v", opening)
	}
}

func TestStartEndpoint_UnknownPatientID(t *testing.T) {
	src := &stubContextSource{id: uuid.New()}
	e, store := newPatientTestServer(&mockGateway{}, src)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"patientId":"`+uuid.New().String()+`"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "unknown patientId")
}

func TestStartEndpoint_MalformedPatientID(t *testing.T) {
	src := &stubContextSource{id: uuid.New()}
	e, store := newPatientTestServer(&mockGateway{}, src)
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"patientId":"not-a-uuid"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "invalid patientId")
}

func TestStartEndpoint_PatientIDWithoutSource(t *testing.T) {
	e, store := newTestServer(&mockGateway{})
	defer store.Close()

	rec := postJSON(e, "/api/v1/ai/interview/start", `{"patientId":"`+uuid.New().String()+`"}`)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec, "patient lookup is not configured")
}

func assertErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder, wantMsg string) {
	t.Helper()
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if resp.OK {
		t.Error("expected ok false")
	}
	if resp.Error != wantMsg {
		t.Errorf("expected error %q, got %q", wantMsg, resp.Error)
	}
}
