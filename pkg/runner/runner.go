package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Machine is the part of *parley.Machine the runner drives.
type Machine interface {
	StartingPrompt(ctx context.Context) (domain.Response, error)
	Answer(ctx context.Context, query string) (domain.Response, error)
	LeaveGreeting(ctx context.Context) (domain.Response, error)
	Snapshot() *domain.Snapshot
	Restore(s *domain.Snapshot) error
}

// Runner handles the read-answer loop of a machine using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on stdin/stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Store is the persistence adapter for resumable sessions.
	// If nil, sessions are ephemeral.
	Store ports.SnapshotStore

	// Transcript records each turn when set.
	Transcript ports.TranscriptStore

	SessionID string
	Renderer  ContentRenderer
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run drives m until the quit sequence, the end of input or the
// cancellation of ctx. The last two speak the leave greeting and return nil.
func (r *Runner) Run(ctx context.Context, m Machine) error {
	handler := r.resolveHandler()

	snap, err := r.restore(ctx, m)
	if err != nil {
		return err
	}
	if snap != nil && snap.InConversation {
		if err := handler.SystemOutput(ctx, "resuming session "+r.SessionID); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	} else {
		resp, err := m.StartingPrompt(ctx)
		if err != nil {
			return fmt.Errorf("starting prompt: %w", err)
		}
		r.record(ctx, "", resp, nil)
		if err := handler.Output(ctx, resp); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}

	for {
		input, err := handler.Input(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrInputTooLarge), errors.Is(err, ErrInvalidUTF8):
				if err := handler.SystemOutput(ctx, err.Error()); err != nil {
					return fmt.Errorf("output error: %w", err)
				}
				continue
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				return r.leave(context.WithoutCancel(ctx), handler, m)
			default:
				return fmt.Errorf("input error: %w", err)
			}
		}

		resp, err := m.Answer(ctx, input)
		if err != nil {
			// the machine already reset itself and resp carries the apology
			r.Logger.WarnContext(ctx, "turn failed", "session_id", r.SessionID, "err", err)
		}
		r.record(ctx, input, resp, err)
		if err := handler.Output(ctx, resp); err != nil {
			return fmt.Errorf("output error: %w", err)
		}

		if resp.Quit {
			return r.forget(ctx)
		}
		if err := r.save(ctx, m); err != nil {
			return fmt.Errorf("critical persistence error: %w", err)
		}
	}
}

// leave speaks the leave greeting. The greeting ends the conversation in the
// machine, so the snapshot saved after the last turn is left as is and the
// session can be resumed.
func (r *Runner) leave(ctx context.Context, handler IOHandler, m Machine) error {
	resp, err := m.LeaveGreeting(ctx)
	if err != nil {
		return fmt.Errorf("leave greeting: %w", err)
	}
	r.record(ctx, "", resp, nil)
	if err := handler.Output(ctx, resp); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}

// restore loads the stored snapshot of the session, if any. A snapshot the
// machine cannot take is discarded.
func (r *Runner) restore(ctx context.Context, m Machine) (*domain.Snapshot, error) {
	if r.Store == nil || r.SessionID == "" {
		return nil, nil
	}
	snap, err := r.Store.Load(ctx, r.SessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", r.SessionID, err)
	}
	if err := m.Restore(snap); err != nil {
		r.Logger.WarnContext(ctx, "discarding unrestorable session", "session_id", r.SessionID, "err", err)
		return nil, nil
	}
	r.Logger.DebugContext(ctx, "session restored", "session_id", r.SessionID, "in_conversation", snap.InConversation)
	return snap, nil
}

func (r *Runner) save(ctx context.Context, m Machine) error {
	if r.Store == nil || r.SessionID == "" {
		return nil
	}
	if err := r.Store.Save(ctx, r.SessionID, m.Snapshot()); err != nil {
		return err
	}
	r.Logger.DebugContext(ctx, "session saved", "session_id", r.SessionID)
	return nil
}

func (r *Runner) forget(ctx context.Context) error {
	if r.Store == nil || r.SessionID == "" {
		return nil
	}
	return r.Store.Delete(ctx, r.SessionID)
}

func (r *Runner) record(ctx context.Context, query string, resp domain.Response, err error) {
	if r.Transcript == nil || r.SessionID == "" {
		return
	}
	understood := err == nil && resp.Rule != domain.RuleNotUnderstood
	if err := r.Transcript.Append(ctx, domain.NewExchange(r.SessionID, query, resp, understood)); err != nil {
		r.Logger.WarnContext(ctx, "failed to append transcript", "session_id", r.SessionID, "err", err)
	}
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	// Memoize to prevent creating new pumps on subsequent Run() calls
	r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	return r.Handler
}
