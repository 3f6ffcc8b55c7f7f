package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
	"github.com/fsnotify/fsnotify"
)

// Loader implements ports.GrammarLoader over a directory of .yaml, .yml and
// .json grammar files. The file name without extension is the grammar name.
type Loader struct {
	Dir    string
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used by the watcher.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader reading grammars from dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		Dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// sources maps grammar names to file paths. Two files with the same stem are
// a collision.
func (l *Loader) sources() (map[string]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar directory: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !grammar.IsSource(entry.Name()) {
			continue
		}
		name := grammar.NameFromPath(entry.Name())
		if existing, ok := out[name]; ok {
			return nil, fmt.Errorf("collision detected: grammar '%s' is defined in both '%s' and '%s'",
				name, filepath.Base(existing), entry.Name())
		}
		out[name] = filepath.Join(l.Dir, entry.Name())
	}
	return out, nil
}

// GetGrammar reads the source of a grammar.
func (l *Loader) GetGrammar(name string) ([]byte, error) {
	srcs, err := l.sources()
	if err != nil {
		return nil, err
	}
	path, ok := srcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGrammarNotFound, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGrammarNotFound, name)
		}
		return nil, fmt.Errorf("failed to read grammar %s: %w", name, err)
	}
	return data, nil
}

// ListGrammars returns grammar names in sorted order.
func (l *Loader) ListGrammars() ([]string, error) {
	srcs, err := l.sources()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(srcs))
	for name := range srcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Watch implements ports.Watchable. It emits the name of every grammar file
// written, created, renamed or removed until ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := w.Add(l.Dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.Dir, err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("grammar watcher error", "err", err)
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if !grammar.IsSource(evt.Name) || evt.Op == fsnotify.Chmod {
					continue
				}
				select {
				case ch <- grammar.NameFromPath(evt.Name):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
