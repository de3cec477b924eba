package versions

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound indicates the policy does not exist
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists indicates a policy with the same ID was already created
	ErrPolicyExists = errors.New("policy already exists")

	// ErrVersionNotFound indicates the (policy, version) pair does not exist
	ErrVersionNotFound = errors.New("policy version not found")

	// ErrConflict is returned by stores when a Transition's expected state no longer holds
	ErrConflict = errors.New("concurrent modification")

	// ErrOverrideReasonRequired indicates the current default version was deprecated without a reason
	ErrOverrideReasonRequired = errors.New("deprecating the default version requires an override reason")

	// ErrInvalidDecision indicates an approval decision other than APPROVED or REJECTED
	ErrInvalidDecision = errors.New("invalid approval decision")
)

// InvalidTransitionError indicates an operation that is not legal from the version's current state
type InvalidTransitionError struct {
	PolicyID  string
	Version   int
	Current   Status
	Operation Operation
}

// Error returns the error message
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("policy %s version %d: cannot %s from state %s", e.PolicyID, e.Version, e.Operation, e.Current)
}

// PermissionDeniedError indicates the actor may not perform the operation
type PermissionDeniedError struct {
	ActorID   string
	PolicyID  string
	Operation Operation
}

// Error returns the error message
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to %s on policy %s", e.ActorID, e.Operation, e.PolicyID)
}

// ConflictError indicates a transition lost a race even after retrying
type ConflictError struct {
	PolicyID  string
	Version   int
	Operation Operation
	Cause     error
}

// Error returns the error message
func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy %s version %d: %s conflicted with a concurrent change", e.PolicyID, e.Version, e.Operation)
}

// Unwrap returns the underlying cause
func (e *ConflictError) Unwrap() error {
	return e.Cause
}
