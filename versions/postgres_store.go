package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
// Transitions lock the policy row first and then the version row, so all
// transitions of one policy are serialised by the database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed Store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// inTx runs fn in a transaction, rolling back on error
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePolicy inserts a new policy
func (s *PostgresStore) CreatePolicy(ctx context.Context, policy *Policy) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, deny_by_default, default_version, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $4)
	`, policy.ID, policy.Name, policy.DenyByDefault, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("policy %s: %w", policy.ID, ErrPolicyExists)
		}
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	policy.CreatedAt = now
	policy.UpdatedAt = now
	policy.DefaultVersion = 0
	return nil
}

// GetPolicy retrieves a policy by ID
func (s *PostgresStore) GetPolicy(ctx context.Context, policyID string) (*Policy, error) {
	var p Policy
	var defaultVersion sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, deny_by_default, default_version, created_at, updated_at
		FROM policies
		WHERE id = $1
	`, policyID).Scan(&p.ID, &p.Name, &p.DenyByDefault, &defaultVersion, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s: %w", policyID, ErrPolicyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	p.DefaultVersion = int(defaultVersion.Int64)
	return &p, nil
}

// CreateVersion inserts the next draft version of a policy
func (s *PostgresStore) CreateVersion(ctx context.Context, version *PolicyVersion) error {
	now := time.Now().UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Lock the policy so concurrent drafts get distinct numbers
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM policies WHERE id = $1 FOR UPDATE`, version.PolicyID).Scan(&id)
		if err == sql.ErrNoRows {
			return fmt.Errorf("policy %s: %w", version.PolicyID, ErrPolicyNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock policy: %w", err)
		}

		var next int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO policy_versions (policy_id, version, content, status, is_default, comment, created_by, created_at, updated_at)
			SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, false, $4, $5, $6, $6
			FROM policy_versions
			WHERE policy_id = $1
			RETURNING version
		`, version.PolicyID, version.Content, StatusDraft, version.Comment, version.CreatedBy, now).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to insert policy version: %w", err)
		}

		version.Version = next
		version.Status = StatusDraft
		version.IsDefault = false
		version.CreatedAt = now
		version.UpdatedAt = now
		return nil
	})
}

const versionColumns = `policy_id, version, content, status, is_default, comment, approver_id, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*PolicyVersion, error) {
	var v PolicyVersion
	var status string
	if err := row.Scan(&v.PolicyID, &v.Version, &v.Content, &status, &v.IsDefault,
		&v.Comment, &v.ApproverID, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Status = Status(status)
	return &v, nil
}

// GetVersion retrieves a single version
func (s *PostgresStore) GetVersion(ctx context.Context, policyID string, version int) (*PolicyVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM policy_versions
		WHERE policy_id = $1 AND version = $2
	`, policyID, version))

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s version %d: %w", policyID, version, ErrVersionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy version: %w", err)
	}
	return v, nil
}

// ListVersions returns every version of a policy ordered by version number
func (s *PostgresStore) ListVersions(ctx context.Context, policyID string) ([]*PolicyVersion, error) {
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM policy_versions
		WHERE policy_id = $1
		ORDER BY version ASC
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer rows.Close()

	var list []*PolicyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy version: %w", err)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy versions: %w", err)
	}
	return list, nil
}

// GetDefaultVersion reads the default version in one statement so the result
// is a consistent snapshot
func (s *PostgresStore) GetDefaultVersion(ctx context.Context, policyID string) (*PolicyVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT v.policy_id, v.version, v.content, v.status, v.is_default, v.comment, v.approver_id, v.created_by, v.created_at, v.updated_at
		FROM policies p
		JOIN policy_versions v ON v.policy_id = p.id AND v.version = p.default_version
		WHERE p.id = $1
	`, policyID))

	if err == sql.ErrNoRows {
		// Distinguish "no default" from "no policy"
		if _, perr := s.GetPolicy(ctx, policyID); perr != nil {
			return nil, perr
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default version: %w", err)
	}
	return v, nil
}

// ApplyTransition performs the compare-and-swap described by t in one transaction
func (s *PostgresStore) ApplyTransition(ctx context.Context, t *Transition) error {
	at := t.At.UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var defaultVersion sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT default_version FROM policies WHERE id = $1 FOR UPDATE
		`, t.PolicyID).Scan(&defaultVersion)
		if err == sql.ErrNoRows {
			return fmt.Errorf("policy %s: %w", t.PolicyID, ErrPolicyNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock policy: %w", err)
		}

		var status string
		var isDefault bool
		err = tx.QueryRowContext(ctx, `
			SELECT status, is_default FROM policy_versions
			WHERE policy_id = $1 AND version = $2
			FOR UPDATE
		`, t.PolicyID, t.Version).Scan(&status, &isDefault)
		if err == sql.ErrNoRows {
			return fmt.Errorf("policy %s version %d: %w", t.PolicyID, t.Version, ErrVersionNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock policy version: %w", err)
		}

		if Status(status) != t.FromStatus || isDefault != t.FromDefault {
			return fmt.Errorf("policy %s version %d is %s (default=%v): %w",
				t.PolicyID, t.Version, status, isDefault, ErrConflict)
		}

		newDefault := isDefault
		switch t.Default {
		case DefaultAssign:
			var prevVersion int
			var prevStatus string
			err := tx.QueryRowContext(ctx, `
				UPDATE policy_versions SET is_default = false, updated_at = $3
				WHERE policy_id = $1 AND version <> $2 AND is_default
				RETURNING version, status
			`, t.PolicyID, t.Version, at).Scan(&prevVersion, &prevStatus)
			switch {
			case err == sql.ErrNoRows:
			case err != nil:
				return fmt.Errorf("failed to clear previous default: %w", err)
			default:
				if err := insertAudit(ctx, tx, replacedDefaultAudit(t, prevVersion, Status(prevStatus))); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE policies SET default_version = $2, updated_at = $3 WHERE id = $1
			`, t.PolicyID, t.Version, at); err != nil {
				return fmt.Errorf("failed to move default pointer: %w", err)
			}
			newDefault = true
		case DefaultClear:
			if _, err := tx.ExecContext(ctx, `
				UPDATE policies SET default_version = NULL, updated_at = $3
				WHERE id = $1 AND default_version = $2
			`, t.PolicyID, t.Version, at); err != nil {
				return fmt.Errorf("failed to clear default pointer: %w", err)
			}
			newDefault = false
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE policy_versions
			SET status = $3,
			    is_default = $4,
			    approver_id = CASE WHEN $5::text = '' THEN approver_id ELSE $5::text END,
			    comment = CASE WHEN $6::text = '' THEN comment ELSE $6::text END,
			    updated_at = $7
			WHERE policy_id = $1 AND version = $2
		`, t.PolicyID, t.Version, t.ToStatus, newDefault, t.ApproverID, t.Comment, at); err != nil {
			return fmt.Errorf("failed to update policy version: %w", err)
		}

		return insertAudit(ctx, tx, t.Audit)
	})
}

func insertAudit(ctx context.Context, tx *sql.Tx, a AuditEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_audit (id, policy_id, version, user_id, operation, from_state, to_state, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.PolicyID, a.Version, a.UserID, a.Operation, a.FromState, a.ToState, a.Comment, a.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns a version's audit entries, oldest first
func (s *PostgresStore) ListAudit(ctx context.Context, policyID string, version int) ([]*AuditEntry, error) {
	if _, err := s.GetVersion(ctx, policyID, version); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, version, user_id, operation, from_state, to_state, comment, created_at
		FROM version_audit
		WHERE policy_id = $1 AND version = $2
		ORDER BY created_at ASC
	`, policyID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var list []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var op, from, to string
		if err := rows.Scan(&e.ID, &e.PolicyID, &e.Version, &e.UserID, &op, &from, &to, &e.Comment, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Operation = Operation(op)
		e.FromState = Status(from)
		e.ToState = Status(to)
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return list, nil
}
