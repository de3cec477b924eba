package rules

import (
	"fmt"
	"regexp"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateField checks that name is usable as a rule FIELD: one or more
// letters, digits and underscores.
func ValidateField(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("field name cannot be empty")
	}
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("invalid field name (letters, digits and underscores only)")
	}
	return nil
}
