package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files or directories...]",
	Short: "Check grammar files",
	Long: `Checks each grammar against the schema, compiles it and reports hidden
rules that no browsable rule leads to. Defaults to the grammar directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if cfg.GrammarDir == "" {
				return fmt.Errorf("nothing to validate: pass files or set --grammars")
			}
			args = []string{cfg.GrammarDir}
		}
		paths, err := validator.Expand(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no grammar files in %s", strings.Join(args, ", "))
		}

		out := cmd.OutOrStdout()
		reports := validator.ValidateFiles(paths)
		for _, r := range reports {
			if !r.OK() {
				fmt.Fprintf(out, "FAIL %s: %v\n", r.Path, r.Err)
				continue
			}
			fmt.Fprintf(out, "ok   %s (%s, %d rules)\n", r.Path, r.Grammar, r.Rules)
			for _, name := range r.Unreachable {
				fmt.Fprintf(out, "     warning: hidden rule %q is not reached by any browsable rule\n", name)
			}
		}

		ok, failed := validator.Summary(reports)
		if failed > 0 {
			return fmt.Errorf("validation failed: %d of %d grammars", failed, ok+failed)
		}
		fmt.Fprintf(out, "%d grammars are valid\n", ok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
