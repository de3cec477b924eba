//go:build integration

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liamcoop/policies/internal/config"
	"github.com/liamcoop/policies/internal/pgtest"
)

func TestEndToEnd_PostgresLifecycleAndExecute(t *testing.T) {
	db := pgtest.Start(t)

	cfg := config.Default()
	cfg.Database.URL = "postgres://from-container"
	cfg.Execution.LogSink = "postgres"
	cfg.Permissions.Approvers = []string{approver}

	s, err := NewServer(cfg, db)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s)
	defer ts.Close()

	base := ts.URL + "/api/v1/policies"

	status, body := do(t, "POST", base, CreatePolicyRequest{ID: "refunds", Name: "Refunds", DenyByDefault: true})
	expectStatus(t, status, http.StatusCreated, body)

	for _, content := range []string{
		"if amount > 100 then deny over limit\nif amount <= 100 then allow",
		"if amount > 500 then deny over limit\nif amount <= 500 then allow",
	} {
		status, body = do(t, "POST", base+"/refunds/versions", CreateVersionRequest{Content: content, ActorID: "author"})
		expectStatus(t, status, http.StatusCreated, body)
	}

	for _, v := range []string{"1", "2"} {
		status, body = do(t, "POST", base+"/refunds/versions/"+v+"/submit", TransitionRequest{ActorID: "author"})
		expectStatus(t, status, http.StatusOK, body)
		status, body = do(t, "POST", base+"/refunds/versions/"+v+"/approve", TransitionRequest{ActorID: approver})
		expectStatus(t, status, http.StatusOK, body)
	}

	status, body = do(t, "POST", base+"/refunds/execute", ExecuteRequest{Input: map[string]any{"amount": 300}})
	expectStatus(t, status, http.StatusOK, body)
	if body["version"] != float64(2) || body["decision"].(map[string]any)["verdict"] != "allow" {
		t.Fatalf("expected version 2 to allow, got %v", body)
	}

	status, body = do(t, "POST", base+"/refunds/versions/1/default", TransitionRequest{ActorID: approver, Comment: "rollback"})
	expectStatus(t, status, http.StatusOK, body)

	status, body = do(t, "POST", base+"/refunds/execute", ExecuteRequest{Input: map[string]any{"amount": 300}})
	expectStatus(t, status, http.StatusOK, body)
	if body["version"] != float64(1) || body["decision"].(map[string]any)["verdict"] != "deny" {
		t.Fatalf("expected version 1 to deny after rollback, got %v", body)
	}

	// Missing field falls through to deny-by-default
	status, body = do(t, "POST", base+"/refunds/execute", ExecuteRequest{Input: map[string]any{}})
	expectStatus(t, status, http.StatusOK, body)
	if body["decision"].(map[string]any)["defaulted"] != true {
		t.Errorf("expected defaulted decision, got %v", body["decision"])
	}

	var logged int
	if err := db.QueryRow(`SELECT COUNT(*) FROM execution_logs WHERE policy_id = 'refunds'`).Scan(&logged); err != nil {
		t.Fatalf("Failed to count execution logs: %v", err)
	}
	if logged != 3 {
		t.Errorf("expected 3 execution logs, got %d", logged)
	}

	status, body = do(t, "GET", ts.URL+"/api/v1/health", nil)
	expectStatus(t, status, http.StatusOK, body)
	if body["store"] != "postgres" {
		t.Errorf("expected postgres store, got %v", body["store"])
	}
}
