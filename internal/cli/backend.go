package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/pkg/adapters/bolt"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/sql"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
)

// Backend bundles the stores selected by a Config.
type Backend struct {
	Store      ports.SnapshotStore
	Transcript ports.TranscriptStore
	// Locker is set for backends shared between replicas.
	Locker ports.DistributedLocker

	closers []func() error
}

// Close releases every connection the backend opened.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenBackend opens the snapshot store, transcript store and locker of cfg.
func OpenBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.Store {
	case StoreFile:
		b.Store = file.NewStore(cfg.StorePath)
		b.Transcript = memory.NewTranscript()
	case StoreBolt:
		db, err := bolt.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.Store = db
		b.Transcript = db.Transcript()
	case StoreRedis:
		var opts []redis.Option
		if cfg.SessionTTL > 0 {
			opts = append(opts, redis.WithTTL(time.Duration(cfg.SessionTTL)*time.Second))
		}
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		b.closers = append(b.closers, store.Close)
		b.Store = store
		b.Transcript = redis.NewTranscript(store.Client(), "")
		b.Locker = redis.NewLocker(store.Client(), "parley:")
	default:
		b.Store = memory.NewStore()
		b.Transcript = memory.NewTranscript()
	}

	if cfg.TranscriptDriver != "" {
		t, err := sql.Open(ctx, cfg.TranscriptDriver, cfg.TranscriptDSN)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, t.Close)
		b.Transcript = t
	}

	// Masking runs before sealing so the sealed snapshot is masked too.
	if cfg.SealKey != "" {
		keys, err := cfg.sealKeys()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    keys[0],
			FallbackKeys: keys[1:],
		})(b.Store)
	}
	if len(cfg.MaskGroups) > 0 {
		b.Store = middleware.NewPIIMiddleware(cfg.MaskGroups)(b.Store)
	}
	if len(cfg.Redact) > 0 {
		b.Transcript = middleware.NewRedactionMiddleware(cfg.Redact)(b.Transcript)
	}

	logger.Debug("backend ready",
		"store", cfg.Store,
		"transcript_driver", cfg.TranscriptDriver,
		"sealed", cfg.SealKey != "",
		"masked_groups", len(cfg.MaskGroups),
	)
	return b, nil
}
