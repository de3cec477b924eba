package permissions

import (
	"context"
	"errors"
	"testing"
)

func TestStaticChecker(t *testing.T) {
	c := NewStaticChecker("alice", " bob ", "")
	ctx := context.Background()

	tests := []struct {
		actor string
		want  bool
	}{
		{"alice", true},
		{"bob", true},
		{"mallory", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			got, err := c.CanApprove(ctx, tt.actor, "p1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanApprove(%q) = %v, want %v", tt.actor, got, tt.want)
			}
		})
	}
}

func TestStaticCheckerWildcard(t *testing.T) {
	c := NewStaticChecker(Wildcard)

	ok, _ := c.CanApprove(context.Background(), "anyone", "p1")
	if !ok {
		t.Error("wildcard should grant every named actor")
	}
	ok, _ = c.CanApprove(context.Background(), "", "p1")
	if ok {
		t.Error("wildcard should not grant an anonymous actor")
	}
}

func TestExpressionChecker(t *testing.T) {
	roles := StaticRoles{
		"alice": {"approver"},
		"bob":   {"viewer"},
	}

	expr := `"approver" in roles || policy.startsWith("sandbox-")`
	c, err := NewExpressionChecker(expr, roles)
	if err != nil {
		t.Fatalf("NewExpressionChecker failed: %v", err)
	}
	if c.Expression() != expr {
		t.Errorf("Expression() = %q, want %q", c.Expression(), expr)
	}

	tests := []struct {
		name   string
		actor  string
		policy string
		want   bool
	}{
		{"role grants", "alice", "payments", true},
		{"role missing", "bob", "payments", false},
		{"unknown actor", "carol", "payments", false},
		{"sandbox policy", "bob", "sandbox-refunds", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CanApprove(context.Background(), tt.actor, tt.policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpressionCheckerRejectsBadExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", `actor ==`},
		{"unknown variable", `user == "alice"`},
		{"non bool", `actor + policy`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExpressionChecker(tt.expr, nil); err == nil {
				t.Errorf("expected error for %q", tt.expr)
			}
		})
	}
}

type failingRoles struct{}

func (failingRoles) Roles(context.Context, string) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func TestExpressionCheckerRoleSourceError(t *testing.T) {
	c, err := NewExpressionChecker(`"approver" in roles`, failingRoles{})
	if err != nil {
		t.Fatalf("NewExpressionChecker failed: %v", err)
	}

	if _, err := c.CanApprove(context.Background(), "alice", "p1"); err == nil {
		t.Error("expected role source error to surface")
	}
}

type errChecker struct{}

func (errChecker) CanApprove(context.Context, string, string) (bool, error) {
	return false, errors.New("boom")
}

func TestAnyOf(t *testing.T) {
	ctx := context.Background()

	chain := AnyOf{DenyAll{}, NewStaticChecker("alice")}
	if ok, _ := chain.CanApprove(ctx, "alice", "p1"); !ok {
		t.Error("expected second checker to grant")
	}
	if ok, _ := chain.CanApprove(ctx, "bob", "p1"); ok {
		t.Error("expected no checker to grant bob")
	}

	if _, err := (AnyOf{errChecker{}, NewStaticChecker("alice")}).CanApprove(ctx, "alice", "p1"); err == nil {
		t.Error("expected error from first checker to stop the walk")
	}

	if ok, _ := (AnyOf{}).CanApprove(ctx, "alice", "p1"); ok {
		t.Error("empty chain should deny")
	}
}
