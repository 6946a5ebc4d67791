package interview

import (
	"time"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/platform/llm"
)

// Language selects the patient-facing language of an interview.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageBangla  Language = "bn"
)

var validLanguages = map[Language]bool{
	LanguageEnglish: true,
	LanguageBangla:  true,
}

// NormalizeLanguage maps an arbitrary input to a supported language,
// defaulting to English.
func NormalizeLanguage(s string) Language {
	l := Language(s)
	if validLanguages[l] {
		return l
	}
	return LanguageEnglish
}

// Session statuses. A session starts awaiting the patient's first answer and
// moves forward only; Done sessions still accept report requests.
const (
	StatusAwaitingAnswer  = "awaiting_answer"
	StatusDone            = "done"
	StatusReportGenerated = "report_generated"
)

// Session is a single interview's accumulated state. History is the literal
// conversation replayed to the model on every turn; history[0] is always the
// system prompt for the session's language.
type Session struct {
	ID        string        `json:"id"`
	Language  Language      `json:"language"`
	Status    string        `json:"status"`
	History   []llm.Message `json:"history"`
	TurnCount int           `json:"turn_count"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// NewSession creates a session seeded with the system prompt for the given
// language.
func NewSession(language Language, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:       uuid.New().String(),
		Language: language,
		Status:   StatusAwaitingAnswer,
		History: []llm.Message{
			{Role: llm.RoleSystem, Content: BuildSystemPrompt(language)},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session has outlived its TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AddTurn appends a role-tagged message to the conversation.
func (s *Session) AddTurn(role, content string) {
	s.History = append(s.History, llm.Message{Role: role, Content: content})
}

// questionReply is the JSON shape the model is instructed to return on every
// interview turn.
type questionReply struct {
	Question string `json:"question"`
	Done     bool   `json:"done"`
}

// reportReply is the JSON shape the model is instructed to return for the
// final report.
type reportReply struct {
	Report string `json:"report"`
}

// Transcript is a completed interview persisted for later review.
type Transcript struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	SessionID string        `db:"session_id" json:"session_id"`
	Language  Language      `db:"language" json:"language"`
	TurnCount int           `db:"turn_count" json:"turn_count"`
	Turns     []llm.Message `db:"turns" json:"turns"`
	Report    string        `db:"report" json:"report"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}
