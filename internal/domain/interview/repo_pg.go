package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type transcriptRepoPG struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepo creates a Postgres-backed TranscriptRepository.
func NewTranscriptRepo(pool *pgxpool.Pool) TranscriptRepository {
	return &transcriptRepoPG{pool: pool}
}

const transcriptColumns = `id, session_id, language, turn_count, turns, report, created_at, updated_at`

func (r *transcriptRepoPG) Upsert(ctx context.Context, t *Transcript) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	turns, err := json.Marshal(t.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO interview_transcript (id, session_id, language, turn_count, turns, report)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			turn_count = EXCLUDED.turn_count,
			turns = EXCLUDED.turns,
			report = EXCLUDED.report,
			updated_at = NOW()`,
		t.ID, t.SessionID, string(t.Language), t.TurnCount, turns, t.Report,
	)
	return err
}

func (r *transcriptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transcript, error) {
	return r.scanTranscript(r.pool.QueryRow(ctx,
		`SELECT `+transcriptColumns+` FROM interview_transcript WHERE id = $1`, id))
}

func (r *transcriptRepoPG) GetBySessionID(ctx context.Context, sessionID string) (*Transcript, error) {
	return r.scanTranscript(r.pool.QueryRow(ctx,
		`SELECT `+transcriptColumns+` FROM interview_transcript WHERE session_id = $1`, sessionID))
}

func (r *transcriptRepoPG) List(ctx context.Context, limit, offset int) ([]*Transcript, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM interview_transcript`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+transcriptColumns+` FROM interview_transcript
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transcripts []*Transcript
	for rows.Next() {
		t, err := r.scanTranscript(rows)
		if err != nil {
			return nil, 0, err
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, total, nil
}

func (r *transcriptRepoPG) scanTranscript(row pgx.Row) (*Transcript, error) {
	var t Transcript
	var language string
	var turns []byte
	err := row.Scan(&t.ID, &t.SessionID, &language, &t.TurnCount, &turns, &t.Report, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Language = Language(language)
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &t.Turns); err != nil {
			return nil, fmt.Errorf("unmarshal turns: %w", err)
		}
	}
	return &t, nil
}
