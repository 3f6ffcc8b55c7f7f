package runner

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a machine response to the user.
	Output(ctx context.Context, resp domain.Response) error

	// Input reads the next user input.
	// Returns io.EOF when the stream is exhausted.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message to the user (e.g. a resumed session).
	// This is distinct from machine responses.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms response text before it is written.
// This allows TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
