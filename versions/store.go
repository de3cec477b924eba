package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists policies, their versions and the transition audit trail.
// Implementations must apply a Transition atomically and return ErrConflict
// when its expected state no longer holds.
type Store interface {
	// CreatePolicy adds a new policy with no versions
	CreatePolicy(ctx context.Context, policy *Policy) error

	// GetPolicy retrieves a policy by ID
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)

	// CreateVersion appends a draft version, assigning the next version number
	CreateVersion(ctx context.Context, version *PolicyVersion) error

	// GetVersion retrieves a single version
	GetVersion(ctx context.Context, policyID string, version int) (*PolicyVersion, error)

	// ListVersions returns every version of a policy in version order
	ListVersions(ctx context.Context, policyID string) ([]*PolicyVersion, error)

	// GetDefaultVersion returns a snapshot of the default version, or nil if the policy has none
	GetDefaultVersion(ctx context.Context, policyID string) (*PolicyVersion, error)

	// ApplyTransition performs a guarded status change together with its default
	// pointer update and audit entry
	ApplyTransition(ctx context.Context, t *Transition) error

	// ListAudit returns the audit entries of a version, oldest first
	ListAudit(ctx context.Context, policyID string, version int) ([]*AuditEntry, error)
}

type versionKey struct {
	policyID string
	version  int
}

// InMemoryStore implements Store using in-memory maps.
// Thread-safe: every method holds the store's RWMutex for its whole duration,
// which makes ApplyTransition atomic.
type InMemoryStore struct {
	policies map[string]*Policy
	versions map[versionKey]*PolicyVersion
	audit    map[versionKey][]*AuditEntry
	mu       sync.RWMutex
}

// NewInMemoryStore creates a new in-memory version store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		policies: make(map[string]*Policy),
		versions: make(map[versionKey]*PolicyVersion),
		audit:    make(map[versionKey][]*AuditEntry),
	}
}

// CreatePolicy adds a new policy, setting CreatedAt and UpdatedAt
func (s *InMemoryStore) CreatePolicy(_ context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[policy.ID]; exists {
		return fmt.Errorf("policy %s: %w", policy.ID, ErrPolicyExists)
	}

	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	policy.DefaultVersion = 0

	stored := *policy
	s.policies[policy.ID] = &stored
	return nil
}

// GetPolicy retrieves a copy of the policy
func (s *InMemoryStore) GetPolicy(_ context.Context, policyID string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.policies[policyID]
	if !exists {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrPolicyNotFound)
	}
	cp := *p
	return &cp, nil
}

// CreateVersion stores version as the policy's next draft
func (s *InMemoryStore) CreateVersion(_ context.Context, version *PolicyVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[version.PolicyID]; !exists {
		return fmt.Errorf("policy %s: %w", version.PolicyID, ErrPolicyNotFound)
	}

	next := 1
	for k := range s.versions {
		if k.policyID == version.PolicyID && k.version >= next {
			next = k.version + 1
		}
	}

	now := time.Now()
	version.Version = next
	version.Status = StatusDraft
	version.IsDefault = false
	version.CreatedAt = now
	version.UpdatedAt = now

	stored := *version
	s.versions[versionKey{version.PolicyID, next}] = &stored
	return nil
}

// GetVersion retrieves a copy of a version
func (s *InMemoryStore) GetVersion(_ context.Context, policyID string, version int) (*PolicyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.versions[versionKey{policyID, version}]
	if !exists {
		return nil, fmt.Errorf("policy %s version %d: %w", policyID, version, ErrVersionNotFound)
	}
	cp := *v
	return &cp, nil
}

// ListVersions returns copies of all versions of a policy
func (s *InMemoryStore) ListVersions(_ context.Context, policyID string) ([]*PolicyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.policies[policyID]; !exists {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrPolicyNotFound)
	}

	var list []*PolicyVersion
	for k, v := range s.versions {
		if k.policyID == policyID {
			cp := *v
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

// GetDefaultVersion follows the policy's default pointer
func (s *InMemoryStore) GetDefaultVersion(_ context.Context, policyID string) (*PolicyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.policies[policyID]
	if !exists {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrPolicyNotFound)
	}
	if p.DefaultVersion == 0 {
		return nil, nil
	}

	v, exists := s.versions[versionKey{policyID, p.DefaultVersion}]
	if !exists {
		return nil, fmt.Errorf("policy %s default version %d: %w", policyID, p.DefaultVersion, ErrVersionNotFound)
	}
	cp := *v
	return &cp, nil
}

// ApplyTransition performs the compare-and-swap described by t
func (s *InMemoryStore) ApplyTransition(_ context.Context, t *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.policies[t.PolicyID]
	if !exists {
		return fmt.Errorf("policy %s: %w", t.PolicyID, ErrPolicyNotFound)
	}
	key := versionKey{t.PolicyID, t.Version}
	v, exists := s.versions[key]
	if !exists {
		return fmt.Errorf("policy %s version %d: %w", t.PolicyID, t.Version, ErrVersionNotFound)
	}

	if v.Status != t.FromStatus || v.IsDefault != t.FromDefault {
		return fmt.Errorf("policy %s version %d is %s (default=%v): %w",
			t.PolicyID, t.Version, v.Status, v.IsDefault, ErrConflict)
	}

	switch t.Default {
	case DefaultAssign:
		if p.DefaultVersion != 0 && p.DefaultVersion != t.Version {
			prevKey := versionKey{t.PolicyID, p.DefaultVersion}
			if prev, ok := s.versions[prevKey]; ok {
				prev.IsDefault = false
				prev.UpdatedAt = t.At
				entry := replacedDefaultAudit(t, prev.Version, prev.Status)
				s.audit[prevKey] = append(s.audit[prevKey], &entry)
			}
		}
		v.IsDefault = true
		p.DefaultVersion = t.Version
		p.UpdatedAt = t.At
	case DefaultClear:
		v.IsDefault = false
		if p.DefaultVersion == t.Version {
			p.DefaultVersion = 0
			p.UpdatedAt = t.At
		}
	}

	v.Status = t.ToStatus
	v.UpdatedAt = t.At
	if t.ApproverID != "" {
		v.ApproverID = t.ApproverID
	}
	if t.Comment != "" {
		v.Comment = t.Comment
	}

	entry := t.Audit
	s.audit[key] = append(s.audit[key], &entry)
	return nil
}

// ListAudit returns copies of a version's audit entries
func (s *InMemoryStore) ListAudit(_ context.Context, policyID string, version int) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.versions[versionKey{policyID, version}]; !exists {
		return nil, fmt.Errorf("policy %s version %d: %w", policyID, version, ErrVersionNotFound)
	}

	entries := s.audit[versionKey{policyID, version}]
	list := make([]*AuditEntry, len(entries))
	for i, e := range entries {
		cp := *e
		list[i] = &cp
	}
	return list, nil
}
