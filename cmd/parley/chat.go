package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the answering machine",
	Long: `Starts an interactive conversation on the terminal. End it with "bye"
or Ctrl+D. With --session the conversation is stored and resumed on the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.ChatOptions{In: os.Stdin, Out: cmd.OutOrStdout()}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")
		opts.Style, _ = cmd.Flags().GetString("style")

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return cli.RunChat(ctx, cfg, opts, logger())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session ID to persist and resume")
	chatCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload grammars when their files change")
	chatCmd.Flags().Bool("fresh", false, "Discard the stored session before starting")
	chatCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	chatCmd.Flags().String("style", "", `Glamour style for answers ("dark", "light", "notty"), or "plain"`)

	// chat is the default command
	rootCmd.RunE = chatCmd.RunE
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
}
