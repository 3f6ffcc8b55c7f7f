package main

import (
	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var rulesMermaid bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List domains and their rules in claim order",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := cli.NewMachine(cmd.Context(), cfg, logger())
		if err != nil {
			return err
		}
		if rulesMermaid {
			return cli.PrintMermaid(cmd.OutOrStdout(), m, nil)
		}
		return cli.PrintRules(cmd.OutOrStdout(), m)
	},
}

func init() {
	rulesCmd.Flags().BoolVar(&rulesMermaid, "mermaid", false, "Print the rule flow as a Mermaid chart")
	rootCmd.AddCommand(rulesCmd)
}
