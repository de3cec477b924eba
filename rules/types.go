package rules

// Operator is the comparison a rule applies between an input field and its literal
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "neq"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
)

// operatorSymbols maps source-text operators to their Operator
var operatorSymbols = map[string]Operator{
	"==": OpEqual,
	"!=": OpNotEqual,
	">":  OpGreater,
	">=": OpGreaterEqual,
	"<":  OpLess,
	"<=": OpLessEqual,
}

// Action is what a matching rule asks for
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Rule is one parsed line of rule-language text.
// Rules are immutable once parsed.
type Rule struct {
	Line     int      `json:"line"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Action   Action   `json:"action"`

	// Modifier is the free text after the action keyword. For allow it is a
	// proceed keyword, for deny a human readable reason. Empty means unset.
	Modifier string `json:"modifier,omitempty"`
}

// EvaluationResult contains the outcome of evaluating a single rule
type EvaluationResult struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Matched bool   `json:"matched"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason,omitempty"`
}
