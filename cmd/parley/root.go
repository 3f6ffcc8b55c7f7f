package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var cfg = cli.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a regex-driven answering machine",
	Long: `Parley routes short user inputs across grammar domains, asks for the
missing parts of a request one by one and answers from message templates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.GrammarDir, "grammars", cfg.GrammarDir, "Directory of grammar files (env "+cli.EnvGrammarDir+"); bundled skills when empty")
	f.BoolVar(&cfg.Loam, "loam", false, "Read the grammar directory as a loam repository of markdown documents")
	f.StringVar(&cfg.Store, "store", cfg.Store, "Session store: memory, file, bolt or redis")
	f.StringVar(&cfg.StorePath, "store-path", "", "Directory (file) or database file (bolt) of the session store")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address (env "+cli.EnvRedisAddr+")")
	f.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	f.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database")
	f.IntVar(&cfg.SessionTTL, "session-ttl", 0, "Seconds before an idle redis session expires (0 keeps it)")
	f.StringVar(&cfg.TranscriptDriver, "transcript-driver", "", "SQL driver for transcripts: postgres or sqlite3")
	f.StringVar(&cfg.TranscriptDSN, "transcript-dsn", "", "Data source name of the transcript database")
	f.StringVar(&cfg.SealKey, "seal-key", cfg.SealKey, "Base64 AES-256 key sealing stored snapshots (env "+cli.EnvSealKey+")")
	f.StringSliceVar(&cfg.SealFallbackKeys, "seal-fallback-key", nil, "Previous seal keys still accepted when loading")
	f.StringSliceVar(&cfg.MaskGroups, "mask-group", nil, "Pattern of group names whose values are masked in stored snapshots")
	f.StringSliceVar(&cfg.Redact, "redact", nil, "Pattern replaced by *** in recorded transcripts")
	f.IntVar(&cfg.MaxInputSize, "max-input-size", cfg.MaxInputSize, "Maximum input size in bytes (env PARLEY_MAX_INPUT_SIZE)")
	f.BoolVar(&cfg.Strict, "strict", false, "Disable the no-key and no-token message fallbacks")
	f.StringVar(&cfg.PromptKey, "prompt-key", "", "Key selecting alternative prompts and preambles")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func logger() *slog.Logger {
	l, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return l
}
