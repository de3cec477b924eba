package rules

// DenyTieBreak selects which matching deny rule supplies the surfaced reason
type DenyTieBreak string

const (
	FirstDenyWins DenyTieBreak = "first"
	LastDenyWins  DenyTieBreak = "last"
)

// DecisionOptions configures how per-rule results aggregate into a verdict
type DecisionOptions struct {
	// DefaultVerdict applies when no rule matched. Empty means allow.
	DefaultVerdict Action

	// TieBreak picks the deny rule that supplies the reason. Empty means first.
	TieBreak DenyTieBreak
}

// DefaultDecisionOptions returns allow-by-default, first matching deny wins
func DefaultDecisionOptions() DecisionOptions {
	return DecisionOptions{
		DefaultVerdict: ActionAllow,
		TieBreak:       FirstDenyWins,
	}
}

// Decision is the aggregate verdict of a policy execution
type Decision struct {
	Verdict Action `json:"verdict"`

	// Reason is the modifier of the deciding deny rule, if any
	Reason string `json:"reason,omitempty"`

	// Modifier is the proceed keyword of the deciding allow rule, if any
	Modifier string `json:"modifier,omitempty"`

	// RuleIndex is the index of the deciding rule, -1 when the default verdict applied
	RuleIndex int `json:"ruleIndex"`

	// Defaulted is true when no rule matched
	Defaulted bool `json:"defaulted"`
}

// Decide aggregates results (as returned by EvaluateRules for rules) into a single
// verdict: deny if any matching rule denies, else allow if any matching rule
// allows, else the configured default.
func Decide(rules []Rule, results []EvaluationResult, opts DecisionOptions) Decision {
	denyIdx, allowIdx := -1, -1

	for i, res := range results {
		if !res.Matched || i >= len(rules) {
			continue
		}
		switch rules[i].Action {
		case ActionDeny:
			if denyIdx < 0 || opts.TieBreak == LastDenyWins {
				denyIdx = i
			}
		case ActionAllow:
			if allowIdx < 0 {
				allowIdx = i
			}
		}
	}

	switch {
	case denyIdx >= 0:
		return Decision{Verdict: ActionDeny, Reason: results[denyIdx].Reason, RuleIndex: denyIdx}
	case allowIdx >= 0:
		return Decision{Verdict: ActionAllow, Modifier: rules[allowIdx].Modifier, RuleIndex: allowIdx}
	}

	verdict := opts.DefaultVerdict
	if verdict != ActionDeny {
		verdict = ActionAllow
	}
	return Decision{Verdict: verdict, RuleIndex: -1, Defaulted: true}
}

// Evaluate runs EvaluateRules and Decide in one step
func Evaluate(rules []Rule, input map[string]any, opts DecisionOptions) (Decision, []EvaluationResult) {
	results := EvaluateRules(rules, input)
	return Decide(rules, results, opts), results
}
