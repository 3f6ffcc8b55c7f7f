package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/file"
	loamAdapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
)

// NewLoader returns the grammar loader of cfg, or nil for the bundled skills.
func NewLoader(cfg Config, logger *slog.Logger) (ports.GrammarLoader, error) {
	if cfg.GrammarDir == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(cfg.GrammarDir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if !cfg.Loam {
		return file.NewLoader(absPath, file.WithLogger(logger)), nil
	}
	// Read-only keeps loam from creating its sandbox; grammars are never written.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return loamAdapter.New(loam.NewTypedRepository[loamAdapter.GrammarMetadata](repo)), nil
}

// MachineOptions are the facade options every command shares.
func MachineOptions(cfg Config, loader ports.GrammarLoader, logger *slog.Logger, hooks ...domain.LifecycleHooks) []parley.Option {
	opts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithStrictMessages(cfg.Strict),
		parley.WithPromptKey(cfg.PromptKey),
		parley.WithLifecycleHooks(domain.MergeHooks(append([]domain.LifecycleHooks{observability.LogHooks(logger)}, hooks...)...)),
	}
	if loader != nil {
		opts = append(opts, parley.WithLoader(loader))
	}
	return opts
}

// NewMachine builds one machine with every grammar of cfg registered.
func NewMachine(ctx context.Context, cfg Config, logger *slog.Logger) (*parley.Machine, ports.GrammarLoader, error) {
	loader, err := NewLoader(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	m, err := session.NewFactory(registry.WithSkills(logger), MachineOptions(cfg, loader, logger)...)(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m, loader, nil
}

// Sessions is a session manager with the backend it persists to.
type Sessions struct {
	*session.Manager
	Backend *Backend
	Loader  ports.GrammarLoader
}

// Close releases the backend.
func (s *Sessions) Close() error { return s.Backend.Close() }

// NewSessions opens the backend of cfg and builds a session manager over it.
func NewSessions(ctx context.Context, cfg Config, logger *slog.Logger, hooks ...domain.LifecycleHooks) (*Sessions, error) {
	loader, err := NewLoader(cfg, logger)
	if err != nil {
		return nil, err
	}
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	factory := session.NewFactory(registry.WithSkills(logger), MachineOptions(cfg, loader, logger, hooks...)...)
	// Fail fast on broken grammars instead of on the first request.
	if _, err := factory(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithTranscript(backend.Transcript),
	}
	if backend.Locker != nil {
		opts = append(opts, session.WithLocker(backend.Locker))
	}
	return &Sessions{
		Manager: session.NewManager(backend.Store, factory, opts...),
		Backend: backend,
		Loader:  loader,
	}, nil
}
