package interview

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/platform/llm"
	"github.com/intake/intake/pkg/pagination"
)

// ContextSource resolves a patient identifier to the clinical summary used
// as the opening context of an interview.
type ContextSource interface {
	BuildInterviewContext(ctx context.Context, patientID uuid.UUID) (string, error)
}

// Handler exposes the interview endpoints. Every response carries the
// {ok, ...} envelope; failures are serialized as {ok:false, error} and no
// error escapes past the handler.
type Handler struct {
	svc      *Service
	contexts ContextSource
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// WithContextSource lets start requests reference a stored patient by ID
// instead of passing a free-text context.
func (h *Handler) WithContextSource(src ContextSource) *Handler {
	h.contexts = src
	return h
}

// RegisterRoutes mounts the interview routes on the given API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	ai := api.Group("/ai/interview")
	ai.POST("/start", h.Start)
	ai.POST("/next", h.Next)
	ai.POST("/report", h.Report)

	api.GET("/interviews", h.ListTranscripts)
	api.GET("/interviews/:id", h.GetTranscript)
}

type startRequest struct {
	Context   string `json:"context"`
	PatientID string `json:"patientId"`
	Language  string `json:"language"`
}

type nextRequest struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
}

type reportRequest struct {
	SessionID string `json:"sessionId"`
}

type turnResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	Done      bool   `json:"done"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{OK: false, Error: msg})
}

func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "malformed request body")
	}
	patientContext := strings.TrimSpace(req.Context)
	if patientContext == "" && req.PatientID != "" {
		if h.contexts == nil {
			return fail(c, http.StatusNotImplemented, "patient lookup is not configured")
		}
		pid, err := uuid.Parse(req.PatientID)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid patientId")
		}
		patientContext, err = h.contexts.BuildInterviewContext(c.Request().Context(), pid)
		if err != nil {
			return fail(c, http.StatusBadRequest, "unknown patientId")
		}
	}
	if patientContext == "" {
		return fail(c, http.StatusBadRequest, "context is required")
	}

	result, err := h.svc.Start(c.Request().Context(), patientContext, NormalizeLanguage(req.Language))
	if err != nil {
		return gatewayFailure(c, err)
	}

	return c.JSON(http.StatusOK, turnResponse{
		OK:        true,
		SessionID: result.SessionID,
		Question:  result.Question,
		Done:      result.Done,
	})
}

func (h *Handler) Next(c echo.Context) error {
	var req nextRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "malformed request body")
	}
	if req.SessionID == "" {
		return fail(c, http.StatusBadRequest, "invalid sessionId")
	}

	result, err := h.svc.Next(c.Request().Context(), req.SessionID, req.Answer)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return fail(c, http.StatusBadRequest, "invalid sessionId")
		}
		return gatewayFailure(c, err)
	}

	return c.JSON(http.StatusOK, turnResponse{
		OK:        true,
		SessionID: result.SessionID,
		Question:  result.Question,
		Done:      result.Done,
	})
}

func (h *Handler) Report(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "malformed request body")
	}
	if req.SessionID == "" {
		return fail(c, http.StatusBadRequest, "invalid sessionId")
	}

	report, err := h.svc.Report(c.Request().Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return fail(c, http.StatusBadRequest, "invalid sessionId")
		}
		return gatewayFailure(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"report": report,
	})
}

func (h *Handler) ListTranscripts(c echo.Context) error {
	if h.svc.repo == nil {
		return fail(c, http.StatusNotImplemented, "transcript storage is not configured")
	}
	p := pagination.FromContext(c)
	transcripts, total, err := h.svc.repo.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to list interviews")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(transcripts, total, p.Limit, p.Offset))
}

func (h *Handler) GetTranscript(c echo.Context) error {
	if h.svc.repo == nil {
		return fail(c, http.StatusNotImplemented, "transcript storage is not configured")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusNotFound, "interview not found")
	}
	return c.JSON(http.StatusOK, t)
}

// gatewayFailure maps the gateway error taxonomy to HTTP statuses: missing
// credential and exhausted fallback are server-side failures, a rejected
// credential surfaces as 401.
func gatewayFailure(c echo.Context, err error) error {
	var authErr *llm.AuthError
	if errors.As(err, &authErr) {
		return fail(c, http.StatusUnauthorized, "upstream rejected API credentials")
	}
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return fail(c, http.StatusInternalServerError, "chat API key is not configured")
	}
	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) {
		return fail(c, http.StatusInternalServerError, gwErr.Error())
	}
	return fail(c, http.StatusInternalServerError, err.Error())
}
