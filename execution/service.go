// Package execution runs the default version of a policy against an input.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/policies/internal/logger"
	"github.com/liamcoop/policies/internal/metrics"
	"github.com/liamcoop/policies/rules"
	"github.com/liamcoop/policies/versions"
)

// VersionSource is the read side of the version store that execution needs.
// versions.Store satisfies it.
type VersionSource interface {
	GetPolicy(ctx context.Context, policyID string) (*versions.Policy, error)
	GetDefaultVersion(ctx context.Context, policyID string) (*versions.PolicyVersion, error)
}

// Result is the outcome of executing a policy
type Result struct {
	PolicyID   string                   `json:"policyId"`
	Version    int                      `json:"version"`
	Decision   rules.Decision           `json:"decision"`
	Results    []rules.EvaluationResult `json:"results"`
	Duration   time.Duration            `json:"-"`
	DurationMs float64                  `json:"durationMs"`
}

// Service executes policies. It never writes to the version store.
type Service struct {
	source   VersionSource
	cache    RulesetCache
	sink     LogSink
	options  rules.DecisionOptions
	metrics  *metrics.Metrics
	logger   *slog.Logger
	logInput bool
	now      func() time.Time
}

type Option func(*Service)

// WithCache replaces the default in-memory ruleset cache
func WithCache(c RulesetCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogSink sends a LogRecord for every successful execution to sink
func WithLogSink(sink LogSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithDecisionOptions sets the fallback verdict and deny tie-break.
// A deny-by-default policy always falls back to deny.
func WithDecisionOptions(opts rules.DecisionOptions) Option {
	return func(s *Service) { s.options = opts }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithInputLogging includes the raw input in log records
func WithInputLogging(enabled bool) Option {
	return func(s *Service) { s.logInput = enabled }
}

// NewService creates an execution service reading from source
func NewService(source VersionSource, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("version source cannot be nil")
	}

	s := &Service{
		source:  source,
		cache:   NewInMemoryRulesetCache(DefaultCacheConfig()),
		options: rules.DefaultDecisionOptions(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "execution.service")

	return s, nil
}

// Execute evaluates the policy's default version against input. Every rule
// is evaluated and the per-rule results are returned alongside the decision.
func (s *Service) Execute(ctx context.Context, policyID string, input map[string]any) (*Result, error) {
	start := s.now()

	policy, err := s.source.GetPolicy(ctx, policyID)
	if err != nil {
		s.metrics.ExecutionFailed("policy_lookup")
		return nil, err
	}

	version, err := s.source.GetDefaultVersion(ctx, policyID)
	if err != nil {
		s.metrics.ExecutionFailed("version_lookup")
		return nil, fmt.Errorf("failed to load default version of %s: %w", policyID, err)
	}
	if version == nil {
		s.metrics.ExecutionFailed("no_active_version")
		return nil, &NoActivePolicyVersionError{PolicyID: policyID}
	}

	ruleset, err := s.ruleset(version)
	if err != nil {
		s.metrics.ExecutionFailed("parse")
		return nil, err
	}

	opts := s.options
	if policy.DenyByDefault {
		opts.DefaultVerdict = rules.ActionDeny
	}

	decision, results := rules.Evaluate(ruleset, input, opts)
	duration := s.now().Sub(start)

	res := &Result{
		PolicyID:   policyID,
		Version:    version.Version,
		Decision:   decision,
		Results:    results,
		Duration:   duration,
		DurationMs: float64(duration.Microseconds()) / 1000,
	}

	s.metrics.ExecutionObserved(string(decision.Verdict), duration, matchedByAction(ruleset, results))
	s.record(ctx, res, input, start)

	logger.Trace("policy executed",
		"policy_id", policyID,
		"version", version.Version,
		"verdict", decision.Verdict,
		"rules", len(ruleset))

	return res, nil
}

// ruleset returns the parsed rules of v, parsing and caching on a miss
func (s *Service) ruleset(v *versions.PolicyVersion) ([]rules.Rule, error) {
	key := RulesetKey{PolicyID: v.PolicyID, Version: v.Version}
	if rs, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookup(true)
		return rs, nil
	}
	s.metrics.CacheLookup(false)

	rs, err := rules.ParseRules(v.Content)
	if err != nil {
		return nil, fmt.Errorf("policy %s version %d does not parse: %w", v.PolicyID, v.Version, err)
	}
	s.cache.Set(key, rs)
	return rs, nil
}

// record hands the execution to the sink. Sink failures are logged, never returned.
func (s *Service) record(ctx context.Context, res *Result, input map[string]any, executedAt time.Time) {
	if s.sink == nil {
		return
	}

	rec := &LogRecord{
		ID:         uuid.NewString(),
		PolicyID:   res.PolicyID,
		Version:    res.Version,
		Verdict:    res.Decision.Verdict,
		Reason:     res.Decision.Reason,
		Results:    res.Results,
		DurationMs: res.DurationMs,
		ExecutedAt: executedAt.UTC(),
	}
	if s.logInput {
		rec.Input = input
	}

	if err := s.sink.Record(ctx, rec); err != nil {
		logger.WarnSinkFailure()
		s.logger.Warn("failed to record execution",
			"policy_id", res.PolicyID,
			"version", res.Version,
			"error", err)
	}
}

// InvalidatePolicy drops cached rulesets of policyID
func (s *Service) InvalidatePolicy(policyID string) {
	s.cache.Invalidate(policyID)
}

func matchedByAction(rs []rules.Rule, results []rules.EvaluationResult) map[string]int {
	counts := make(map[string]int, 2)
	for i, r := range results {
		if r.Matched && i < len(rs) {
			counts[string(rs[i].Action)]++
		}
	}
	return counts
}
