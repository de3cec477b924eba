// Package permissions provides approval checks for the version lifecycle.
package permissions

import (
	"context"
	"strings"
)

// Wildcard grants approval rights to every actor when listed as an approver
const Wildcard = "*"

// Checker reports whether an actor may approve versions of a policy
type Checker interface {
	CanApprove(ctx context.Context, actorID, policyID string) (bool, error)
}

// StaticChecker grants approval rights to a fixed set of actors
type StaticChecker struct {
	approvers map[string]struct{}
}

// NewStaticChecker creates a checker granting rights to approvers. Blank IDs are ignored.
func NewStaticChecker(approvers ...string) *StaticChecker {
	c := &StaticChecker{approvers: make(map[string]struct{}, len(approvers))}
	for _, a := range approvers {
		if a = strings.TrimSpace(a); a != "" {
			c.approvers[a] = struct{}{}
		}
	}
	return c
}

func (c *StaticChecker) CanApprove(_ context.Context, actorID, _ string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if _, ok := c.approvers[Wildcard]; ok {
		return true, nil
	}
	_, ok := c.approvers[actorID]
	return ok, nil
}

// AnyOf grants approval when at least one checker does. Checkers are consulted
// in order and the first error stops the walk.
type AnyOf []Checker

func (a AnyOf) CanApprove(ctx context.Context, actorID, policyID string) (bool, error) {
	for _, c := range a {
		ok, err := c.CanApprove(ctx, actorID, policyID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// DenyAll refuses every actor
type DenyAll struct{}

func (DenyAll) CanApprove(context.Context, string, string) (bool, error) {
	return false, nil
}
