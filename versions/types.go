package versions

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a PolicyVersion
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusDeprecated      Status = "deprecated"
	StatusArchived        Status = "archived"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected, StatusDeprecated, StatusArchived:
		return true
	}
	return false
}

// IsTerminal returns true once no operation can leave s
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

// Operation is a lifecycle transition a caller can request
type Operation string

const (
	OpSubmitForApproval Operation = "submit_for_approval"
	OpApprove           Operation = "approve"
	OpReject            Operation = "reject"
	OpDeprecate         Operation = "deprecate"
	OpArchive           Operation = "archive"
	OpSetDefault        Operation = "set_default"

	// OpDefaultReplaced is recorded by the store on the version that loses
	// the default to another one. Callers cannot request it.
	OpDefaultReplaced Operation = "default_replaced"
)

// allowedFrom lists the states each operation may start from
var allowedFrom = map[Operation][]Status{
	OpSubmitForApproval: {StatusDraft},
	OpApprove:           {StatusPendingApproval},
	OpReject:            {StatusPendingApproval},
	OpDeprecate:         {StatusApproved},
	OpArchive:           {StatusDraft, StatusRejected, StatusDeprecated},
	OpSetDefault:        {StatusApproved},
}

// CanApply returns true if op is legal from status s
func (s Status) CanApply(op Operation) bool {
	return slices.Contains(allowedFrom[op], s)
}

// ApprovalDecision is the outcome an approver records on a pending version
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "APPROVED"
	DecisionRejected ApprovalDecision = "REJECTED"
)

// Policy owns a sequence of versions. DefaultVersion is a denormalised pointer
// to the version currently executed (0 when none) and is only written through
// Store.ApplyTransition.
type Policy struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DenyByDefault  bool      `json:"denyByDefault"`
	DefaultVersion int       `json:"defaultVersion,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PolicyVersion is one numbered revision of a policy's rule text
type PolicyVersion struct {
	PolicyID   string    `json:"policyId"`
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	Status     Status    `json:"status"`
	IsDefault  bool      `json:"isDefault"`
	Comment    string    `json:"comment,omitempty"`
	ApproverID string    `json:"approverId,omitempty"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AuditEntry records one applied transition. Entries are append-only.
type AuditEntry struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policyId"`
	Version   int       `json:"version"`
	UserID    string    `json:"userId"`
	Operation Operation `json:"operation"`
	FromState Status    `json:"fromState"`
	ToState   Status    `json:"toState"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultChange describes what a transition does to the default pointer
type DefaultChange int

const (
	// DefaultKeep leaves the default pointer untouched
	DefaultKeep DefaultChange = iota

	// DefaultAssign clears the previous default and makes this version the default
	DefaultAssign

	// DefaultClear removes this version as default, leaving the policy without one
	DefaultClear
)

// Transition is a compare-and-swap on a single version row. The store applies
// it only if the row still has FromStatus and FromDefault, and writes the new
// status, default pointer and audit entry atomically.
type Transition struct {
	PolicyID    string
	Version     int
	FromStatus  Status
	FromDefault bool
	ToStatus    Status
	Default     DefaultChange

	// ApproverID and Comment overwrite the version's fields when non-empty
	ApproverID string
	Comment    string

	At    time.Time
	Audit AuditEntry
}

// replacedDefaultAudit is the entry written for the previous default when t
// assigns the default to another version. Its status does not change.
func replacedDefaultAudit(t *Transition, previous int, status Status) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		PolicyID:  t.PolicyID,
		Version:   previous,
		UserID:    t.Audit.UserID,
		Operation: OpDefaultReplaced,
		FromState: status,
		ToState:   status,
		Comment:   fmt.Sprintf("default moved to version %d", t.Version),
		Timestamp: t.At,
	}
}
