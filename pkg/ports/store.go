package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// SnapshotStore persists conversation snapshots so sessions survive
// process restarts and can move between replicas.
type SnapshotStore interface {
	// Save persists the snapshot for a session ID.
	Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error

	// Load retrieves the snapshot of a session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of every stored session.
	List(ctx context.Context) ([]string, error)
}

// TranscriptStore keeps the ordered exchanges of each session.
type TranscriptStore interface {
	// Append records one exchange. The store assigns Seq.
	Append(ctx context.Context, ex domain.Exchange) error

	// Transcript returns the exchanges of a session in order.
	Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error)

	// Forget removes every exchange of a session.
	Forget(ctx context.Context, sessionID string) error
}
