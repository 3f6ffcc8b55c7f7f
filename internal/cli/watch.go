package cli

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/ports"
)

// Refresher drops cached machines after a grammar change.
type Refresher interface {
	Refresh()
}

// WatchGrammars refreshes r whenever a grammar of loader changes, and
// forwards the changed names to the returned channel. Subscribers that lag
// miss names; refreshing never waits for them. It returns nil when the
// loader cannot be watched.
func WatchGrammars(ctx context.Context, loader ports.GrammarLoader, r Refresher, logger *slog.Logger) <-chan string {
	w, ok := loader.(ports.Watchable)
	if !ok {
		return nil
	}
	events, err := w.Watch(ctx)
	if err != nil {
		logger.Warn("grammar watch unavailable", "err", err)
		return nil
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for name := range events {
			logger.Info("Change detected, reloading grammars", "grammar", name)
			r.Refresh()
			select {
			case out <- name:
			default:
			}
		}
	}()
	return out
}
