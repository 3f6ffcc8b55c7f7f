package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Conversation is the driving port used by transport adapters. Each call
// addresses one session; implementations load, run and persist its state.
type Conversation interface {
	// Start creates a session and returns its ID with the starting prompt.
	Start(ctx context.Context) (string, domain.Response, error)

	// Answer feeds one user input to a session.
	Answer(ctx context.Context, sessionID, query string) (domain.Response, error)

	// RunRule runs a rule by name inside a session.
	RunRule(ctx context.Context, sessionID, rule string) (domain.Response, error)

	// Reset abandons the current conversation of a session.
	Reset(ctx context.Context, sessionID string) error

	// End deletes a session and returns the leave greeting.
	End(ctx context.Context, sessionID string) (domain.Response, error)

	// Domains lists the registered domains in claim order.
	Domains() []string
}
