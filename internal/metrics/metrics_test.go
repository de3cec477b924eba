package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.ExecutionObserved("allow", time.Millisecond, map[string]int{"allow": 1})
	m.ExecutionFailed("no_active_version")
	m.TransitionObserved("approve", "applied")
	m.ParseFailed()
	m.CacheLookup(true)

	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestCountersIncrement(t *testing.T) {
	m := New("test")

	m.ExecutionObserved("deny", 2*time.Millisecond, map[string]int{"deny": 2, "allow": 1})
	m.ExecutionObserved("deny", time.Millisecond, nil)
	m.TransitionObserved("approve", "applied")
	m.ParseFailed()
	m.CacheLookup(false)

	if got := testutil.ToFloat64(m.executionsTotal.WithLabelValues("deny")); got != 2 {
		t.Errorf("expected 2 deny executions, got %v", got)
	}
	if got := testutil.ToFloat64(m.ruleMatches.WithLabelValues("deny")); got != 2 {
		t.Errorf("expected 2 deny matches, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("approve", "applied")); got != 1 {
		t.Errorf("expected 1 applied approval, got %v", got)
	}
	if got := testutil.ToFloat64(m.parseFailures); got != 1 {
		t.Errorf("expected 1 parse failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("policies")
	m.TransitionObserved("submit_for_approval", "applied")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "policies_version_transitions_total") {
		t.Errorf("expected transitions metric in output, got:\n%s", rec.Body.String())
	}
}
