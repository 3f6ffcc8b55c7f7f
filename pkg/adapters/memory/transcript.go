package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Transcript implements ports.TranscriptStore in memory.
type Transcript struct {
	mu   sync.Mutex
	seq  int
	data map[string][]domain.Exchange
}

// NewTranscript creates an empty transcript store.
func NewTranscript() *Transcript {
	return &Transcript{data: make(map[string][]domain.Exchange)}
}

// Append records one exchange.
func (t *Transcript) Append(ctx context.Context, ex domain.Exchange) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	ex.Seq = t.seq
	t.data[ex.SessionID] = append(t.data[ex.SessionID], ex)
	return nil
}

// Transcript returns a copy of the exchanges of a session.
func (t *Transcript) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.data[sessionID]), nil
}

// Forget removes a session's exchanges.
func (t *Transcript) Forget(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, sessionID)
	return nil
}
