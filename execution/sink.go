package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/policies/rules"
)

// LogRecord is one execution written to a LogSink
type LogRecord struct {
	ID         string                   `json:"id"`
	PolicyID   string                   `json:"policyId"`
	Version    int                      `json:"version"`
	Verdict    rules.Action             `json:"verdict"`
	Reason     string                   `json:"reason,omitempty"`
	Input      map[string]any           `json:"input,omitempty"`
	Results    []rules.EvaluationResult `json:"results"`
	DurationMs float64                  `json:"durationMs"`
	ExecutedAt time.Time                `json:"executedAt"`
}

// LogSink receives execution records
type LogSink interface {
	Record(ctx context.Context, rec *LogRecord) error
}

// MemoryLogSink keeps records in memory, dropping the oldest past its limit
type MemoryLogSink struct {
	records []*LogRecord
	limit   int
	mu      sync.RWMutex
}

// NewMemoryLogSink creates a sink holding at most limit records; 0 means unbounded
func NewMemoryLogSink(limit int) *MemoryLogSink {
	return &MemoryLogSink{limit: limit}
}

func (s *MemoryLogSink) Record(_ context.Context, rec *LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return nil
}

// Records returns the stored records of policyID, oldest first. An empty
// policyID returns every record.
func (s *MemoryLogSink) Records(policyID string) []*LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LogRecord, 0, len(s.records))
	for _, rec := range s.records {
		if policyID == "" || rec.PolicyID == policyID {
			out = append(out, rec)
		}
	}
	return out
}

// PostgresLogSink writes records to the execution_logs table
type PostgresLogSink struct {
	db *sql.DB
}

func NewPostgresLogSink(db *sql.DB) *PostgresLogSink {
	return &PostgresLogSink{db: db}
}

func (s *PostgresLogSink) Record(ctx context.Context, rec *LogRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	var input []byte
	if rec.Input != nil {
		if input, err = json.Marshal(rec.Input); err != nil {
			return fmt.Errorf("failed to marshal input: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, policy_id, version, verdict, reason, results, input, duration_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.PolicyID, rec.Version, string(rec.Verdict), rec.Reason, results, input, rec.DurationMs, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}
	return nil
}

// List returns the most recent records of policyID, newest first
func (s *PostgresLogSink) List(ctx context.Context, policyID string, limit int) ([]*LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, version, verdict, reason, results, input, duration_ms, executed_at
		FROM execution_logs
		WHERE policy_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, policyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var out []*LogRecord
	for rows.Next() {
		var rec LogRecord
		var verdict string
		var results, input []byte
		if err := rows.Scan(&rec.ID, &rec.PolicyID, &rec.Version, &verdict, &rec.Reason,
			&results, &input, &rec.DurationMs, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		rec.Verdict = rules.Action(verdict)
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &rec.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal input: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
