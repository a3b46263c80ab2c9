package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the durable persistence operations for outbox entries.
//
// MarkDispatched must be atomic per entry: the PENDING to DISPATCHED
// transition happens at most once, and marking an already dispatched
// entry is reported as ErrEntryAlreadyDispatched so callers can treat the
// in-flight duplicate race as benign.
type Store interface {
	Add(ctx context.Context, entry *Entry) error
	MarkDispatched(ctx context.Context, id uuid.UUID, dispatchedAt time.Time) error
	MarkAttempt(ctx context.Context, id uuid.UUID, errMsg string) error
	GetPending(ctx context.Context, olderThan time.Duration, limit int) ([]*Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
}
