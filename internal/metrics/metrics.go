package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks policy execution and version lifecycle activity.
//
// Metrics:
//   - <ns>_policy_executions_total: executions by verdict
//   - <ns>_policy_execution_duration_seconds: wall-clock execution time
//   - <ns>_policy_execution_failures_total: executions that returned an error, by reason
//   - <ns>_rule_matches_total: matching rules by action
//   - <ns>_version_transitions_total: lifecycle operations by operation and outcome
//   - <ns>_rule_parse_failures_total: rule text that failed to parse
//   - <ns>_ruleset_cache_requests_total: parsed ruleset cache lookups by result
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	executionFailures *prometheus.CounterVec
	ruleMatches       *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	parseFailures     prometheus.Counter
	cacheRequests     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them with a fresh registry
func New(namespace string) *Metrics {
	m := &Metrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_executions_total",
				Help:      "Total number of policy executions by verdict",
			},
			[]string{"verdict"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_execution_duration_seconds",
				Help:      "Duration of policy executions in seconds",
				// Rule evaluation is in-memory; most executions finish well under a millisecond
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
			},
		),
		executionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_execution_failures_total",
				Help:      "Total number of policy executions that failed",
			},
			[]string{"reason"},
		),
		ruleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_matches_total",
				Help:      "Total number of matching rules by action",
			},
			[]string{"action"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_transitions_total",
				Help:      "Total number of version lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		parseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_parse_failures_total",
				Help:      "Total number of rule texts that failed to parse",
			},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ruleset_cache_requests_total",
				Help:      "Parsed ruleset cache lookups by result",
			},
			[]string{"result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.executionsTotal,
		m.executionDuration,
		m.executionFailures,
		m.ruleMatches,
		m.transitionsTotal,
		m.parseFailures,
		m.cacheRequests,
	)

	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExecutionObserved records a completed execution
func (m *Metrics) ExecutionObserved(verdict string, duration time.Duration, matchedByAction map[string]int) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(verdict).Inc()
	m.executionDuration.Observe(duration.Seconds())
	for action, n := range matchedByAction {
		m.ruleMatches.WithLabelValues(action).Add(float64(n))
	}
}

// ExecutionFailed records an execution that returned an error
func (m *Metrics) ExecutionFailed(reason string) {
	if m == nil {
		return
	}
	m.executionFailures.WithLabelValues(reason).Inc()
}

// TransitionObserved records the outcome of a lifecycle operation
func (m *Metrics) TransitionObserved(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// ParseFailed records rule text that did not parse
func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

// CacheLookup records a ruleset cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}
