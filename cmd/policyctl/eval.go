package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/policies/rules"
)

type evalOutput struct {
	Decision rules.Decision           `json:"decision"`
	Results  []rules.EvaluationResult `json:"results,omitempty"`
}

func newEvalCommand() *cobra.Command {
	var (
		inputFile      string
		defaultVerdict string
		tieBreak       string
		showResults    bool
	)

	cmd := &cobra.Command{
		Use:   "eval <rules-file>",
		Short: "Evaluate a rule file against an input document",
		Long: `Evaluate every rule in the file against the input and print the
aggregate decision. The input is a JSON or YAML mapping of field names to
numbers, strings or booleans.`,
		Example: `  policyctl eval payments.rules --input order.yaml
  policyctl eval payments.rules --input order.json --default deny --results`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := rules.DecisionOptions{
				DefaultVerdict: rules.Action(defaultVerdict),
				TieBreak:       rules.DenyTieBreak(tieBreak),
			}
			if opts.DefaultVerdict != rules.ActionAllow && opts.DefaultVerdict != rules.ActionDeny {
				return fmt.Errorf("--default must be allow or deny, got %q", defaultVerdict)
			}
			if opts.TieBreak != rules.FirstDenyWins && opts.TieBreak != rules.LastDenyWins {
				return fmt.Errorf("--tie-break must be first or last, got %q", tieBreak)
			}

			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			parsed, err := rules.ParseRules(string(src))
			if err != nil {
				return err
			}

			input := map[string]any{}
			if inputFile != "" {
				raw, err := readSource(cmd, inputFile)
				if err != nil {
					return err
				}
				// YAML is a superset of JSON, so one decoder covers both
				if err := yaml.Unmarshal(raw, &input); err != nil {
					return fmt.Errorf("failed to decode input: %w", err)
				}
			}

			decision, results := rules.Evaluate(parsed, input, opts)

			out := evalOutput{Decision: decision}
			if showResults {
				out.Results = results
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "JSON or YAML input document (- for stdin)")
	cmd.Flags().StringVar(&defaultVerdict, "default", string(rules.ActionAllow), "verdict when no rule matches (allow or deny)")
	cmd.Flags().StringVar(&tieBreak, "tie-break", string(rules.FirstDenyWins), "which matching deny supplies the reason (first or last)")
	cmd.Flags().BoolVar(&showResults, "results", false, "include per-rule results")

	return cmd
}
