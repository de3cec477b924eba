package rules

import "fmt"

// SyntaxError reports a rule line that does not match the grammar.
// Parsing stops at the first SyntaxError and no rules are returned.
type SyntaxError struct {
	// Line is the 1-indexed source line
	Line int

	// Column is the 1-indexed byte offset of Fragment within the line (0 if unknown)
	Column int

	// Fragment is the offending piece of the line
	Fragment string

	Message string
}

// Error returns the error message
func (e *SyntaxError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Message)
	}
	if e.Column > 0 {
		return fmt.Sprintf("syntax error at line %d, column %d: %s near %q", e.Line, e.Column, e.Message, e.Fragment)
	}
	return fmt.Sprintf("syntax error at line %d: %s near %q", e.Line, e.Message, e.Fragment)
}
