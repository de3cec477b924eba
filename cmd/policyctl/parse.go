package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/policies/rules"
)

func newParseCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "parse <rules-file>",
		Short: "Parse a rule file and print the rules as JSON",
		Example: `  # Print parsed rules
  policyctl parse payments.rules

  # Only check syntax, reading from stdin
  cat payments.rules | policyctl parse --quiet -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			parsed, err := rules.ParseRules(string(src))
			if err != nil {
				return err
			}

			if quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rules\n", len(parsed))
				return nil
			}

			if parsed == nil {
				parsed = []rules.Rule{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report whether the file parses")

	return cmd
}
