package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Transcript implements ports.TranscriptStore with one Redis list per session.
type Transcript struct {
	client *backend.Client
	prefix string
}

// NewTranscript creates a transcript store. Keys are "<prefix>transcript:<id>".
func NewTranscript(client *backend.Client, prefix string) *Transcript {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Transcript{client: client, prefix: prefix}
}

func (t *Transcript) key(sessionID string) string {
	return t.prefix + "transcript:" + sessionID
}

// Append records one exchange; Seq is the new list length.
func (t *Transcript) Append(ctx context.Context, ex domain.Exchange) error {
	n, err := t.client.LLen(ctx, t.key(ex.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read transcript length: %w", err)
	}
	ex.Seq = int(n) + 1
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}
	return t.client.RPush(ctx, t.key(ex.SessionID), data).Err()
}

// Transcript returns the exchanges of a session in order.
func (t *Transcript) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	items, err := t.client.LRange(ctx, t.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	out := make([]domain.Exchange, 0, len(items))
	for _, item := range items {
		var ex domain.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exchange: %w", err)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Forget deletes the transcript of a session.
func (t *Transcript) Forget(ctx context.Context, sessionID string) error {
	return t.client.Del(ctx, t.key(sessionID)).Err()
}
