package interview

import (
	"context"

	"github.com/google/uuid"
)

// TranscriptRepository persists completed interviews. Upsert is keyed by
// session ID so repeated report calls overwrite rather than duplicate.
type TranscriptRepository interface {
	Upsert(ctx context.Context, t *Transcript) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transcript, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Transcript, error)
	List(ctx context.Context, limit, offset int) ([]*Transcript, int, error)
}
