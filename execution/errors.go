package execution

import (
	"errors"
	"fmt"
)

// ErrNoActivePolicyVersion is matched by NoActivePolicyVersionError via errors.Is
var ErrNoActivePolicyVersion = errors.New("no active policy version")

// NoActivePolicyVersionError is returned when a policy has no default version
type NoActivePolicyVersionError struct {
	PolicyID string
}

func (e *NoActivePolicyVersionError) Error() string {
	return fmt.Sprintf("policy %s has no active version", e.PolicyID)
}

func (e *NoActivePolicyVersionError) Is(target error) bool {
	return target == ErrNoActivePolicyVersion
}
