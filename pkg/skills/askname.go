package skills

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// GroupName is the group holding the user's name.
const GroupName = "name"

// NameRecorder answers with the grammar's own messages and reports the
// captured name to a callback.
type NameRecorder struct {
	logger *slog.Logger
	onName func(ctx context.Context, name string)
}

var _ domain.Resolver = (*NameRecorder)(nil)

// NewNameRecorder creates the askname resolver. onName may be nil.
func NewNameRecorder(logger *slog.Logger, onName func(ctx context.Context, name string)) *NameRecorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NameRecorder{logger: logger, onName: onName}
}

// Resolve implements domain.Resolver.
func (n *NameRecorder) Resolve(ctx context.Context, turn domain.Turn) (domain.Response, bool, error) {
	resp, done, err := turn.Default(ctx)
	if err != nil {
		return resp, done, err
	}
	name, err := turn.Result(GroupName)
	if err != nil {
		// prequel rules chain into the name prompt before any capture
		return resp, done, nil
	}
	n.logger.Info("user name captured", "name", name)
	if n.onName != nil {
		n.onName(ctx, name)
	}
	return resp, done, nil
}
