// Package cli wires configuration, storage backends and grammar loaders into
// the commands of cmd/parley.
package cli

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/runner"
)

// Environment fallbacks for flags left unset.
const (
	EnvGrammarDir = "PARLEY_GRAMMAR_DIR"
	EnvRedisAddr  = "PARLEY_REDIS_ADDR"
	EnvSealKey    = "PARLEY_SEAL_KEY"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// Config groups the process-level settings shared by every command.
type Config struct {
	// GrammarDir holds grammar sources. Empty selects the bundled skills.
	GrammarDir string
	// Loam reads GrammarDir as a loam repository (markdown frontmatter
	// documents) instead of plain YAML/JSON files.
	Loam bool

	Store         string
	StorePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    int // seconds, redis only

	// TranscriptDriver is "postgres" or "sqlite3"; empty keeps transcripts
	// in the snapshot backend.
	TranscriptDriver string
	TranscriptDSN    string

	// SealKey is a base64 AES-256 key. When set, snapshots are stored sealed.
	SealKey string
	// SealFallbackKeys open snapshots sealed before a key rotation.
	SealFallbackKeys []string
	// MaskGroups are patterns of group names whose captured values are
	// replaced before a snapshot is stored.
	MaskGroups []string
	// Redact are patterns replaced in recorded queries and answers.
	Redact []string

	MaxInputSize int
	Strict       bool
	PromptKey    string

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns the defaults with environment fallbacks applied.
func DefaultConfig() Config {
	cfg := Config{
		GrammarDir: os.Getenv(EnvGrammarDir),
		Store:      StoreMemory,
		RedisAddr:  os.Getenv(EnvRedisAddr),
		SealKey:    os.Getenv(EnvSealKey),
		LogLevel:   "warn",
		LogFormat:  "text",
	}
	if v, err := strconv.Atoi(os.Getenv(runner.EnvMaxInputSize)); err == nil && v > 0 {
		cfg.MaxInputSize = v
	}
	if cfg.RedisAddr != "" {
		cfg.Store = StoreRedis
	}
	return cfg
}

// Validate checks combinations flags cannot express.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile:
	case StoreBolt:
		if c.StorePath == "" {
			return fmt.Errorf("--store=bolt requires --store-path")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("--store=redis requires --redis-addr or %s", EnvRedisAddr)
		}
	default:
		return fmt.Errorf("unknown store %q (memory, file, bolt, redis)", c.Store)
	}
	switch c.TranscriptDriver {
	case "":
	case "postgres", "sqlite3":
		if c.TranscriptDSN == "" {
			return fmt.Errorf("--transcript-driver=%s requires --transcript-dsn", c.TranscriptDriver)
		}
	default:
		return fmt.Errorf("unknown transcript driver %q (postgres, sqlite3)", c.TranscriptDriver)
	}
	if c.SealKey != "" {
		if _, err := c.sealKeys(); err != nil {
			return err
		}
	}
	for _, p := range append(slices.Clone(c.MaskGroups), c.Redact...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	if c.Loam && c.GrammarDir == "" {
		return fmt.Errorf("--loam requires --grammars or %s", EnvGrammarDir)
	}
	return nil
}

// sealKeys decodes the active key followed by the fallback keys.
func (c Config) sealKeys() ([][]byte, error) {
	encoded := append([]string{c.SealKey}, c.SealFallbackKeys...)
	keys := make([][]byte, len(encoded))
	for i, e := range encoded {
		k, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, fmt.Errorf("seal key %d: %w", i, err)
		}
		if len(k) != 32 {
			return nil, fmt.Errorf("seal key %d: want 32 bytes, got %d", i, len(k))
		}
		keys[i] = k
	}
	return keys, nil
}

// Logger builds the application logger on stderr.
func (c Config) Logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(os.Stderr, level, c.LogFormat), nil
}
