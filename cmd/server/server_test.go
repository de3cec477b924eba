package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liamcoop/policies/internal/config"
)

const approver = "approver-1"

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Permissions.Approvers = []string{approver}
	for _, fn := range mutate {
		fn(cfg)
	}

	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Failed to decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func expectStatus(t *testing.T, got, want int, body map[string]any) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d: %v", want, got, body)
	}
}

func TestParseEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, body := do(t, "POST", ts.URL+"/api/v1/rules/parse", ParseRequest{Source: "if amount > 50 then deny\nif country == \"US\" then allow"})
	expectStatus(t, status, http.StatusOK, body)
	if got := len(body["rules"].([]any)); got != 2 {
		t.Errorf("expected 2 rules, got %d", got)
	}

	status, body = do(t, "POST", ts.URL+"/api/v1/rules/parse", ParseRequest{Source: "if amount > 50 then deny\nif amount >> 5 then deny"})
	expectStatus(t, status, http.StatusBadRequest, body)
	if body["line"] != float64(2) {
		t.Errorf("expected error on line 2, got %v", body["line"])
	}

	status, body = do(t, "POST", ts.URL+"/api/v1/rules/parse", ParseRequest{Source: ""})
	expectStatus(t, status, http.StatusOK, body)
	if got := len(body["rules"].([]any)); got != 0 {
		t.Errorf("expected no rules, got %d", got)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, body := do(t, "POST", ts.URL+"/api/v1/rules/evaluate", map[string]any{
		"source": "if amount > 50 then deny too large",
		"input":  map[string]any{"amount": 100},
	})
	expectStatus(t, status, http.StatusOK, body)

	decision := body["decision"].(map[string]any)
	if decision["verdict"] != "deny" || decision["reason"] != "too large" {
		t.Errorf("unexpected decision %v", decision)
	}

	status, body = do(t, "POST", ts.URL+"/api/v1/rules/evaluate", map[string]any{
		"source":         "if amount > 50 then deny",
		"input":          map[string]any{"amount": 1},
		"defaultVerdict": "deny",
	})
	expectStatus(t, status, http.StatusOK, body)
	if body["decision"].(map[string]any)["verdict"] != "deny" {
		t.Errorf("expected default deny, got %v", body["decision"])
	}

	status, body = do(t, "POST", ts.URL+"/api/v1/rules/evaluate", map[string]any{
		"source":         "if amount > 50 then deny",
		"input":          map[string]any{},
		"defaultVerdict": "maybe",
	})
	expectStatus(t, status, http.StatusBadRequest, body)
	if _, ok := body["fields"].(map[string]any)["DefaultVerdict"]; !ok {
		t.Errorf("expected DefaultVerdict field error, got %v", body)
	}

	status, body = do(t, "POST", ts.URL+"/api/v1/rules/evaluate", map[string]any{"source": "if a > 1 then deny"})
	expectStatus(t, status, http.StatusBadRequest, body)
}

func TestPolicyLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/v1/policies"

	status, body := do(t, "POST", base, CreatePolicyRequest{ID: "payments", Name: "Payments"})
	expectStatus(t, status, http.StatusCreated, body)

	status, body = do(t, "POST", base, CreatePolicyRequest{ID: "payments", Name: "Payments"})
	expectStatus(t, status, http.StatusConflict, body)

	// No default yet
	status, body = do(t, "POST", base+"/payments/execute", ExecuteRequest{Input: map[string]any{"amount": 10}})
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = do(t, "POST", base+"/payments/versions", CreateVersionRequest{
		Content: "if amount > 50 then deny too large",
		ActorID: "author",
	})
	expectStatus(t, status, http.StatusCreated, body)
	if body["version"] != float64(1) || body["status"] != "draft" {
		t.Fatalf("unexpected draft %v", body)
	}

	v1 := base + "/payments/versions/1"

	status, body = do(t, "POST", v1+"/approve", TransitionRequest{ActorID: approver})
	expectStatus(t, status, http.StatusConflict, body)

	status, body = do(t, "POST", v1+"/submit", TransitionRequest{ActorID: "author"})
	expectStatus(t, status, http.StatusOK, body)
	if body["status"] != "pending_approval" {
		t.Fatalf("expected pending_approval, got %v", body["status"])
	}

	status, body = do(t, "POST", v1+"/approve", TransitionRequest{ActorID: "author"})
	expectStatus(t, status, http.StatusForbidden, body)

	status, body = do(t, "POST", v1+"/approve", TransitionRequest{ActorID: approver, Comment: "ok"})
	expectStatus(t, status, http.StatusOK, body)
	if body["status"] != "approved" || body["isDefault"] != true {
		t.Fatalf("expected approved default, got %v", body)
	}

	status, body = do(t, "POST", base+"/payments/execute", ExecuteRequest{Input: map[string]any{"amount": 75}})
	expectStatus(t, status, http.StatusOK, body)
	decision := body["decision"].(map[string]any)
	if decision["verdict"] != "deny" || decision["reason"] != "too large" || body["version"] != float64(1) {
		t.Errorf("unexpected execution %v", body)
	}

	status, body = do(t, "POST", v1+"/deprecate", TransitionRequest{ActorID: approver})
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = do(t, "POST", v1+"/deprecate", TransitionRequest{ActorID: approver, Comment: "incident"})
	expectStatus(t, status, http.StatusOK, body)

	status, body = do(t, "POST", base+"/payments/execute", ExecuteRequest{Input: map[string]any{"amount": 75}})
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = do(t, "GET", v1+"/audit", nil)
	expectStatus(t, status, http.StatusOK, body)
	if got := len(body["entries"].([]any)); got != 3 {
		t.Errorf("expected 3 audit entries, got %d", got)
	}

	status, body = do(t, "GET", base+"/payments/versions", nil)
	expectStatus(t, status, http.StatusOK, body)
	if got := len(body["versions"].([]any)); got != 1 {
		t.Errorf("expected 1 version, got %d", got)
	}
}

func TestSubmitInvalidContent(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/v1/policies"

	do(t, "POST", base, CreatePolicyRequest{ID: "p", Name: "p"})
	do(t, "POST", base+"/p/versions", CreateVersionRequest{Content: "if amount between 1 then deny", ActorID: "author"})

	status, body := do(t, "POST", base+"/p/versions/1/submit", TransitionRequest{ActorID: "author"})
	expectStatus(t, status, http.StatusBadRequest, body)
	if body["line"] != float64(1) {
		t.Errorf("expected syntax error on line 1, got %v", body)
	}
}

func TestNotFoundAndBadParams(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/v1/policies"

	status, body := do(t, "GET", base+"/missing/versions", nil)
	expectStatus(t, status, http.StatusNotFound, body)

	do(t, "POST", base, CreatePolicyRequest{ID: "p", Name: "p"})

	status, body = do(t, "GET", base+"/p/versions/7", nil)
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = do(t, "GET", base+"/p/versions/abc", nil)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = do(t, "POST", base+"/p/versions/1/submit", map[string]any{})
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = do(t, "POST", base, CreatePolicyRequest{ID: "a/b", Name: "x"})
	expectStatus(t, status, http.StatusBadRequest, body)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	status, body := do(t, "GET", ts.URL+"/api/v1/health", nil)
	expectStatus(t, status, http.StatusOK, body)
	if body["store"] != "memory" {
		t.Errorf("expected memory store, got %v", body["store"])
	}

	do(t, "POST", ts.URL+"/api/v1/rules/parse", ParseRequest{Source: "nonsense"})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "policies_rule_parse_failures_total 1") {
		t.Errorf("expected parse failure counter in metrics output")
	}
}

func TestMetricsDisabled(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Metrics.Enabled = false })

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", resp.StatusCode)
	}
}

func TestExpressionApprovers(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Permissions.Approvers = nil
		c.Permissions.Expression = `"lead" in roles`
		c.Permissions.Roles = map[string][]string{"carol": {"lead"}}
	})
	base := ts.URL + "/api/v1/policies"

	do(t, "POST", base, CreatePolicyRequest{ID: "p", Name: "p"})
	do(t, "POST", base+"/p/versions", CreateVersionRequest{Content: "if a > 1 then deny", ActorID: "author"})
	do(t, "POST", base+"/p/versions/1/submit", TransitionRequest{ActorID: "author"})

	status, body := do(t, "POST", base+"/p/versions/1/approve", TransitionRequest{ActorID: "dave"})
	expectStatus(t, status, http.StatusForbidden, body)

	status, body = do(t, "POST", base+"/p/versions/1/approve", TransitionRequest{ActorID: "carol"})
	expectStatus(t, status, http.StatusOK, body)
}

func TestInvalidApprovalExpression(t *testing.T) {
	cfg := config.Default()
	cfg.Permissions.Expression = "roles +"

	if _, err := NewServer(cfg, nil); err == nil {
		t.Error("expected error for invalid approval expression")
	}
}
