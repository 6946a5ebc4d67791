package interview

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/llm"
)

// terminalTurn is the assistant turn recorded when an interview completes,
// whether the model signalled done or the turn cap forced it.
const terminalTurn = `{"question":"","done":true}`

// Tuning holds the controller's per-call parameters.
type Tuning struct {
	TurnCap    int
	StartTemp  float64
	NextTemp   float64
	ReportTemp float64
	MaxTokens  int
}

// DefaultTuning mirrors the production defaults.
func DefaultTuning() Tuning {
	return Tuning{
		TurnCap:    15,
		StartTemp:  0.6,
		NextTemp:   0.7,
		ReportTemp: 0.4,
		MaxTokens:  1024,
	}
}

// TurnResult is the outcome of a start or next call.
type TurnResult struct {
	SessionID string
	Question  string
	Done      bool
}

// Service drives the interview state machine over a session store and the
// chat gateway. Transcript persistence is optional; a nil repo disables it.
type Service struct {
	store   SessionStore
	gateway llm.Gateway
	repo    TranscriptRepository
	tuning  Tuning
	logger  zerolog.Logger
}

// NewService creates the interview controller.
func NewService(store SessionStore, gateway llm.Gateway, repo TranscriptRepository, tuning Tuning, logger zerolog.Logger) *Service {
	if tuning.TurnCap <= 0 {
		tuning.TurnCap = 15
	}
	return &Service{
		store:   store,
		gateway: gateway,
		repo:    repo,
		tuning:  tuning,
		logger:  logger.With().Str("component", "interview").Logger(),
	}
}

// Start creates a session for the given patient context and asks the first
// question. The context blob is recorded as the first user turn so every
// later call replays it.
func (s *Service) Start(ctx context.Context, patientContext string, language Language) (*TurnResult, error) {
	session := NewSession(language, 0)
	session.AddTurn(llm.RoleUser, patientContext)

	reply, err := s.gateway.Chat(ctx, session.History, llm.Options{
		Temperature: s.tuning.StartTemp,
		MaxTokens:   s.tuning.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	question, done := s.parseQuestion(session.ID, reply)
	if done {
		session.Status = StatusDone
		session.AddTurn(llm.RoleAssistant, terminalTurn)
	} else {
		session.AddTurn(llm.RoleAssistant, reply)
	}

	s.store.Put(session)

	return &TurnResult{SessionID: session.ID, Question: question, Done: done}, nil
}

// Next records the patient's answer and asks the following question. The
// turn count is incremented under the store lock before the gateway call, so
// two racing submissions for the same session each consume a turn.
func (s *Service) Next(ctx context.Context, sessionID, answer string) (*TurnResult, error) {
	snapshot, err := s.store.Update(sessionID, func(session *Session) error {
		session.AddTurn(llm.RoleUser, answer)
		session.TurnCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snapshot.Status != StatusAwaitingAnswer {
		return &TurnResult{SessionID: sessionID, Question: "", Done: true}, nil
	}

	reply, gwErr := s.gateway.Chat(ctx, snapshot.History, llm.Options{
		Temperature: s.tuning.NextTemp,
		MaxTokens:   s.tuning.MaxTokens,
	})
	if gwErr != nil {
		return nil, gwErr
	}

	question, modelDone := s.parseQuestion(sessionID, reply)
	done := modelDone || snapshot.TurnCount >= s.tuning.TurnCap || question == ""

	if _, err := s.store.Update(sessionID, func(session *Session) error {
		if done {
			session.Status = StatusDone
			session.AddTurn(llm.RoleAssistant, terminalTurn)
		} else {
			session.AddTurn(llm.RoleAssistant, reply)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if done {
		question = ""
	}
	return &TurnResult{SessionID: sessionID, Question: question, Done: done}, nil
}

// Report synthesizes the intake report from the full conversation. It may be
// called repeatedly; each call re-synthesizes from the same history and
// upserts the persisted transcript. Malformed or empty model output degrades
// to a placeholder report, never an error.
func (s *Service) Report(ctx context.Context, sessionID string) (string, error) {
	session, err := s.store.Get(sessionID)
	if err != nil {
		return "", err
	}

	turns := append([]llm.Message(nil), session.History...)
	turns = append(turns, llm.Message{Role: llm.RoleUser, Content: BuildReportPrompt(session.Language)})

	reply, err := s.gateway.Chat(ctx, turns, llm.Options{
		Temperature: s.tuning.ReportTemp,
		MaxTokens:   s.tuning.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	report := s.parseReport(sessionID, reply)
	if report == "" {
		report = PlaceholderReport(session.Language)
	}

	if _, err := s.store.Update(sessionID, func(session *Session) error {
		session.Status = StatusReportGenerated
		return nil
	}); err != nil {
		return "", err
	}

	if s.repo != nil {
		if err := s.repo.Upsert(ctx, &Transcript{
			SessionID: sessionID,
			Language:  session.Language,
			TurnCount: session.TurnCount,
			Turns:     session.History,
			Report:    report,
		}); err != nil {
			// Persistence is best-effort; the caller still gets the report.
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist transcript")
		}
	}

	return report, nil
}

// parseQuestion strictly decodes a {"question","done"} reply. Anything that
// does not parse is treated as the end of the interview; no repair is
// attempted on model output.
func (s *Service) parseQuestion(sessionID, raw string) (string, bool) {
	var reply questionReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		s.logger.Warn().Str("session_id", sessionID).Msg("unparseable model turn, ending interview")
		return "", true
	}
	if strings.TrimSpace(reply.Question) == "" {
		return "", true
	}
	return reply.Question, reply.Done
}

// parseReport strictly decodes a {"report"} reply; empty string means the
// caller should fall back to the placeholder.
func (s *Service) parseReport(sessionID, raw string) string {
	var reply reportReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		s.logger.Warn().Str("session_id", sessionID).Msg("unparseable report output, using placeholder")
		return ""
	}
	return strings.TrimSpace(reply.Report)
}
