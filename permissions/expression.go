package permissions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// RoleSource resolves the roles held by an actor
type RoleSource interface {
	Roles(ctx context.Context, actorID string) ([]string, error)
}

// StaticRoles maps actor IDs to their roles
type StaticRoles map[string][]string

func (s StaticRoles) Roles(_ context.Context, actorID string) ([]string, error) {
	return s[actorID], nil
}

// ExpressionChecker decides approval rights with a CEL expression over the
// variables actor (string), policy (string) and roles (list of strings), e.g.
//
//	"approver" in roles || (policy.startsWith("sandbox-") && actor != "")
type ExpressionChecker struct {
	expression string
	program    cel.Program
	roles      RoleSource
}

// NewExpressionChecker compiles expression, which must produce a bool.
// roles may be nil, in which case roles is always empty.
func NewExpressionChecker(expression string, roles RoleSource) (*ExpressionChecker, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("policy", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("approval expression must return bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	if roles == nil {
		roles = StaticRoles{}
	}

	return &ExpressionChecker{
		expression: expression,
		program:    prog,
		roles:      roles,
	}, nil
}

// Expression returns the source expression
func (c *ExpressionChecker) Expression() string {
	return c.expression
}

func (c *ExpressionChecker) CanApprove(ctx context.Context, actorID, policyID string) (bool, error) {
	roles, err := c.roles.Roles(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve roles for %s: %w", actorID, err)
	}
	if roles == nil {
		roles = []string{}
	}

	out, _, err := c.program.ContextEval(ctx, map[string]any{
		"actor":  actorID,
		"policy": policyID,
		"roles":  roles,
	})
	if err != nil {
		return false, fmt.Errorf("approval expression failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("approval expression returned %T, expected bool", out.Value())
	}
	return allowed, nil
}
