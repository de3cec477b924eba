package versions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/policies/internal/logger"
	"github.com/liamcoop/policies/internal/metrics"
	"github.com/liamcoop/policies/rules"
)

// PermissionChecker decides whether an actor may approve versions of a policy
type PermissionChecker interface {
	CanApprove(ctx context.Context, actorID, policyID string) (bool, error)
}

// Manager is the version lifecycle state machine. It is the only writer of
// version status and of the per-policy default pointer.
type Manager struct {
	store    Store
	perms    PermissionChecker
	validate func(content string) error
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for transition logs
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records transition outcomes on mt
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithContentValidator replaces the check run before a draft is submitted
func WithContentValidator(fn func(content string) error) Option {
	return func(m *Manager) { m.validate = fn }
}

// NewManager creates a lifecycle manager over store
func NewManager(store Store, perms PermissionChecker, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("version store cannot be nil")
	}
	if perms == nil {
		return nil, fmt.Errorf("permission checker cannot be nil")
	}

	m := &Manager{
		store:    store,
		perms:    perms,
		validate: rules.Validate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "versions.manager")

	return m, nil
}

// CreatePolicy registers a new policy without versions
func (m *Manager) CreatePolicy(ctx context.Context, policy *Policy) error {
	if policy.ID == "" {
		return fmt.Errorf("policy ID is required")
	}
	if err := m.store.CreatePolicy(ctx, policy); err != nil {
		return err
	}
	m.logger.Info("policy created", "policy_id", policy.ID, "deny_by_default", policy.DenyByDefault)
	return nil
}

// CreateDraft stores content as the policy's next version, in draft
func (m *Manager) CreateDraft(ctx context.Context, policyID, content, actorID, comment string) (*PolicyVersion, error) {
	v := &PolicyVersion{
		PolicyID:  policyID,
		Content:   content,
		Comment:   comment,
		CreatedBy: actorID,
	}
	if err := m.store.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	m.logger.Info("draft created", "policy_id", policyID, "version", v.Version, "actor_id", actorID)
	return v, nil
}

// GetVersionDetail returns the version, or nil if it does not exist
func (m *Manager) GetVersionDetail(ctx context.Context, policyID string, version int) (*PolicyVersion, error) {
	v, err := m.store.GetVersion(ctx, policyID, version)
	if errors.Is(err, ErrVersionNotFound) {
		return nil, nil
	}
	return v, err
}

// ListVersions returns every version of a policy
func (m *Manager) ListVersions(ctx context.Context, policyID string) ([]*PolicyVersion, error) {
	return m.store.ListVersions(ctx, policyID)
}

// AuditTrail returns the transitions recorded for a version
func (m *Manager) AuditTrail(ctx context.Context, policyID string, version int) ([]*AuditEntry, error) {
	return m.store.ListAudit(ctx, policyID, version)
}

// SubmitForApproval moves a draft whose content parses to pending_approval
func (m *Manager) SubmitForApproval(ctx context.Context, policyID string, version int, actorID, comment string) error {
	return m.transition(ctx, OpSubmitForApproval, policyID, version, actorID, comment, func(v *PolicyVersion) (*Transition, error) {
		if err := m.validate(v.Content); err != nil {
			m.metrics.ParseFailed()
			return nil, fmt.Errorf("policy %s version %d content is invalid: %w", policyID, version, err)
		}
		return &Transition{ToStatus: StatusPendingApproval}, nil
	})
}

// ApproveVersion records an approver's decision on a pending version. Approval
// makes the version the policy's default, replacing the previous one.
func (m *Manager) ApproveVersion(ctx context.Context, policyID string, version int, actorID string, decision ApprovalDecision, comment string) error {
	var op Operation
	switch decision {
	case DecisionApproved:
		op = OpApprove
	case DecisionRejected:
		op = OpReject
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	return m.transition(ctx, op, policyID, version, actorID, comment, func(v *PolicyVersion) (*Transition, error) {
		if err := m.requireApprover(ctx, actorID, policyID, op); err != nil {
			return nil, err
		}
		if op == OpReject {
			return &Transition{ToStatus: StatusRejected, ApproverID: actorID}, nil
		}
		return &Transition{ToStatus: StatusApproved, Default: DefaultAssign, ApproverID: actorID}, nil
	})
}

// DeprecateVersion retires an approved version. Deprecating the current default
// requires an approver and a non-empty reason, and leaves the policy without an
// active version.
func (m *Manager) DeprecateVersion(ctx context.Context, policyID string, version int, actorID, reason string) error {
	return m.transition(ctx, OpDeprecate, policyID, version, actorID, reason, func(v *PolicyVersion) (*Transition, error) {
		if !v.IsDefault {
			return &Transition{ToStatus: StatusDeprecated}, nil
		}
		if reason == "" {
			return nil, fmt.Errorf("policy %s version %d: %w", policyID, version, ErrOverrideReasonRequired)
		}
		if err := m.requireApprover(ctx, actorID, policyID, OpDeprecate); err != nil {
			return nil, err
		}
		return &Transition{ToStatus: StatusDeprecated, Default: DefaultClear}, nil
	})
}

// ArchiveVersion moves a draft, rejected or deprecated version to the terminal archived state
func (m *Manager) ArchiveVersion(ctx context.Context, policyID string, version int, actorID, comment string) error {
	return m.transition(ctx, OpArchive, policyID, version, actorID, comment, func(v *PolicyVersion) (*Transition, error) {
		return &Transition{ToStatus: StatusArchived}, nil
	})
}

// SetDefaultVersion switches the active version to another approved version
// without a new approval cycle. Setting the current default is a no-op.
func (m *Manager) SetDefaultVersion(ctx context.Context, policyID string, version int, actorID, comment string) error {
	return m.transition(ctx, OpSetDefault, policyID, version, actorID, comment, func(v *PolicyVersion) (*Transition, error) {
		if err := m.requireApprover(ctx, actorID, policyID, OpSetDefault); err != nil {
			return nil, err
		}
		if v.IsDefault {
			return nil, nil
		}
		return &Transition{ToStatus: StatusApproved, Default: DefaultAssign}, nil
	})
}

func (m *Manager) requireApprover(ctx context.Context, actorID, policyID string, op Operation) error {
	allowed, err := m.perms.CanApprove(ctx, actorID, policyID)
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if !allowed {
		logger.WarnPermissionDenied()
		return &PermissionDeniedError{ActorID: actorID, PolicyID: policyID, Operation: op}
	}
	return nil
}

// transition loads the version, checks that op is legal from its state, lets
// build apply operation specific guards and hands the result to the store.
// A store conflict is retried once against fresh state. build returning a nil
// Transition means there is nothing to do.
func (m *Manager) transition(ctx context.Context, op Operation, policyID string, version int, actorID, comment string,
	build func(v *PolicyVersion) (*Transition, error)) error {

	for attempt := 0; ; attempt++ {
		v, err := m.store.GetVersion(ctx, policyID, version)
		if err != nil {
			m.metrics.TransitionObserved(string(op), "error")
			return err
		}

		if !v.Status.CanApply(op) {
			m.metrics.TransitionObserved(string(op), "invalid")
			return &InvalidTransitionError{PolicyID: policyID, Version: version, Current: v.Status, Operation: op}
		}

		t, err := build(v)
		if err != nil {
			m.metrics.TransitionObserved(string(op), outcomeOf(err))
			return err
		}
		if t == nil {
			return nil
		}

		now := m.now()
		t.PolicyID = policyID
		t.Version = version
		t.FromStatus = v.Status
		t.FromDefault = v.IsDefault
		t.Comment = comment
		t.At = now
		t.Audit = AuditEntry{
			ID:        uuid.NewString(),
			PolicyID:  policyID,
			Version:   version,
			UserID:    actorID,
			Operation: op,
			FromState: v.Status,
			ToState:   t.ToStatus,
			Comment:   comment,
			Timestamp: now,
		}

		err = m.store.ApplyTransition(ctx, t)
		if err == nil {
			m.metrics.TransitionObserved(string(op), "applied")
			m.logger.Info("version transition applied",
				"policy_id", policyID,
				"version", version,
				"operation", op,
				"from", v.Status,
				"to", t.ToStatus,
				"actor_id", actorID)
			return nil
		}

		if !errors.Is(err, ErrConflict) {
			m.metrics.TransitionObserved(string(op), "error")
			return fmt.Errorf("failed to apply %s: %w", op, err)
		}
		if attempt >= 1 {
			m.metrics.TransitionObserved(string(op), "conflict")
			return &ConflictError{PolicyID: policyID, Version: version, Operation: op, Cause: err}
		}

		m.logger.Debug("transition conflicted, retrying",
			"policy_id", policyID, "version", version, "operation", op, "error", err)
	}
}

func outcomeOf(err error) string {
	var permErr *PermissionDeniedError
	var syntaxErr *rules.SyntaxError
	switch {
	case errors.As(err, &permErr):
		return "denied"
	case errors.As(err, &syntaxErr):
		return "invalid_content"
	default:
		return "rejected"
	}
}
