package main

import (
	"github.com/liamcoop/policies/rules"
	"github.com/liamcoop/policies/versions"
)

// ParseRequest is the body of POST /api/v1/rules/parse
type ParseRequest struct {
	Source string `json:"source" example:"if amount > 50 then deny"`
}

// ParseResponse lists the parsed rules
type ParseResponse struct {
	Rules []rules.Rule `json:"rules"`
}

// EvaluateRequest evaluates ad hoc rule text without storing it
type EvaluateRequest struct {
	Source         string         `json:"source" example:"if amount > 50 then deny"`
	Input          map[string]any `json:"input" validate:"required"`
	DefaultVerdict string         `json:"defaultVerdict,omitempty" validate:"omitempty,oneof=allow deny"`
	TieBreak       string         `json:"tieBreak,omitempty" validate:"omitempty,oneof=first last"`
}

// EvaluateResponse carries the verdict and every per-rule result
type EvaluateResponse struct {
	Decision rules.Decision           `json:"decision"`
	Results  []rules.EvaluationResult `json:"results"`
}

// CreatePolicyRequest registers a policy
type CreatePolicyRequest struct {
	ID            string `json:"id" validate:"required,max=100,excludesall=/?#" example:"payments"`
	Name          string `json:"name" validate:"required,max=200" example:"Payment limits"`
	DenyByDefault bool   `json:"denyByDefault"`
}

// CreateVersionRequest stores new rule text as a draft
type CreateVersionRequest struct {
	Content string `json:"content" example:"if amount > 50 then deny"`
	ActorID string `json:"actorId" validate:"required"`
	Comment string `json:"comment,omitempty"`
}

// TransitionRequest is the body of every lifecycle operation. For deprecate,
// Comment is the override reason.
type TransitionRequest struct {
	ActorID string `json:"actorId" validate:"required"`
	Comment string `json:"comment,omitempty"`
}

// ExecuteRequest runs the policy's default version
type ExecuteRequest struct {
	Input map[string]any `json:"input" validate:"required"`
}

// VersionsListResponse lists a policy's versions
type VersionsListResponse struct {
	Versions []*versions.PolicyVersion `json:"versions"`
}

// AuditResponse lists a version's transitions
type AuditResponse struct {
	Entries []*versions.AuditEntry `json:"entries"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Line     int               `json:"line,omitempty"`
	Column   int               `json:"column,omitempty"`
	Fragment string            `json:"fragment,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string           `json:"status"`
	Store    string           `json:"store"`
	Error    string           `json:"error,omitempty"`
	Counters map[string]int64 `json:"counters"`
}
