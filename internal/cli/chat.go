package cli

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
)

// ChatOptions configures one interactive session.
type ChatOptions struct {
	SessionID string
	JSON      bool
	Watch     bool
	Fresh     bool
	Quiet     bool
	// Style is a glamour style name, "" for auto detection or "plain" to
	// print answers verbatim.
	Style string

	In  io.Reader
	Out io.Writer
}

// RunChat runs the read-answer loop on opts.In and opts.Out. With a session
// ID the conversation is persisted in the backend of cfg and resumed on the
// next run.
func RunChat(ctx context.Context, cfg Config, opts ChatOptions, logger *slog.Logger) error {
	if !opts.JSON && !opts.Quiet {
		tui.PrintBanner(opts.Out, parley.Version)
	}

	loader, err := NewLoader(cfg, logger)
	if err != nil {
		return err
	}
	factory := session.NewFactory(registry.WithSkills(logger), MachineOptions(cfg, loader, logger)...)
	m, err := factory(ctx)
	if err != nil {
		return err
	}
	rm := NewReloadingMachine(m, factory, logger)

	runnerOpts := []runner.Option{runner.WithLogger(logger)}

	if opts.SessionID != "" {
		backend, err := OpenBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		if opts.Fresh {
			if err := backend.Store.Delete(ctx, opts.SessionID); err != nil {
				return err
			}
			if err := backend.Transcript.Forget(ctx, opts.SessionID); err != nil {
				return err
			}
		}
		runnerOpts = append(runnerOpts,
			runner.WithSessionID(opts.SessionID),
			runner.WithStore(backend.Store),
			runner.WithTranscript(backend.Transcript),
		)
	}

	if opts.JSON {
		h := runner.NewJSONHandler(opts.In, opts.Out)
		h.Sanitizer.Limit = cfg.MaxInputSize
		runnerOpts = append(runnerOpts, runner.WithInputHandler(h))
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithInputLimit(cfg.MaxInputSize)}
		if opts.Style != "plain" {
			render, err := tui.NewRenderer(opts.Style, 0)
			if err != nil {
				return err
			}
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
		}
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewTextHandler(opts.In, opts.Out, textOpts...)))
	}

	if opts.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if WatchGrammars(watchCtx, loader, rm, logger) == nil {
			logger.Warn("--watch ignored: grammars are not watchable")
		}
	}

	return runner.New(runnerOpts...).Run(ctx, rm)
}

// ReloadingMachine rebuilds its machine after Refresh, carrying the
// conversation over through a snapshot. It implements runner.Machine.
type ReloadingMachine struct {
	mu      sync.Mutex
	current *parley.Machine
	dirty   bool
	build   session.Factory
	logger  *slog.Logger
}

// NewReloadingMachine wraps m; build makes its replacements.
func NewReloadingMachine(m *parley.Machine, build session.Factory, logger *slog.Logger) *ReloadingMachine {
	return &ReloadingMachine{current: m, build: build, logger: logger}
}

// Refresh marks the machine stale. The rebuild happens on the next call.
func (r *ReloadingMachine) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = true
}

// Machine returns the machine in use, rebuilding it first when stale.
// A failed build keeps the previous machine; a snapshot the new grammars
// cannot restore starts the conversation over.
func (r *ReloadingMachine) Machine(ctx context.Context) *parley.Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return r.current
	}
	r.dirty = false

	next, err := r.build(ctx)
	if err != nil {
		r.logger.Error("grammar reload failed, keeping previous grammars", "err", err)
		return r.current
	}
	if err := next.Restore(r.current.Snapshot()); err != nil {
		r.logger.Warn("conversation not carried over reload", "err", err)
	}
	r.current = next
	r.logger.Info("grammars reloaded", "domains", next.Domains())
	return r.current
}

func (r *ReloadingMachine) StartingPrompt(ctx context.Context) (domain.Response, error) {
	return r.Machine(ctx).StartingPrompt(ctx)
}

func (r *ReloadingMachine) Answer(ctx context.Context, query string) (domain.Response, error) {
	return r.Machine(ctx).Answer(ctx, query)
}

func (r *ReloadingMachine) LeaveGreeting(ctx context.Context) (domain.Response, error) {
	return r.Machine(ctx).LeaveGreeting(ctx)
}

func (r *ReloadingMachine) Snapshot() *domain.Snapshot {
	return r.Machine(context.Background()).Snapshot()
}

func (r *ReloadingMachine) Restore(s *domain.Snapshot) error {
	return r.Machine(context.Background()).Restore(s)
}
