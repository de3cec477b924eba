package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %s, got %s", DefaultPort, cfg.Server.Port)
	}
	if cfg.Evaluation.DefaultVerdict != "allow" || cfg.Evaluation.DenyTieBreak != "first" {
		t.Errorf("unexpected evaluation defaults: %+v", cfg.Evaluation)
	}
	if cfg.Execution.LogSink != "memory" {
		t.Errorf("expected memory sink without a database, got %s", cfg.Execution.LogSink)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  request_timeout: 5s
database:
  url: postgres://localhost/policies
evaluation:
  default_verdict: deny
  deny_tie_break: last
  cache_ttl: 10m
permissions:
  approvers: [alice, bob]
  roles:
    carol: [approver]
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Evaluation.DefaultVerdict != "deny" || cfg.Evaluation.DenyTieBreak != "last" {
		t.Errorf("unexpected evaluation config: %+v", cfg.Evaluation)
	}
	if cfg.Evaluation.CacheTTL != 10*time.Minute {
		t.Errorf("expected 10m cache ttl, got %v", cfg.Evaluation.CacheTTL)
	}
	if cfg.Execution.LogSink != "postgres" {
		t.Errorf("expected postgres sink with a database, got %s", cfg.Execution.LogSink)
	}
	if len(cfg.Permissions.Approvers) != 2 || cfg.Permissions.Roles["carol"][0] != "approver" {
		t.Errorf("unexpected permissions: %+v", cfg.Permissions)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	t.Setenv("PORT", "7070")
	t.Setenv("POLICIES_DEFAULT_VERDICT", "DENY")
	t.Setenv("POLICIES_APPROVERS", " alice, ,bob ")
	t.Setenv("POLICIES_LOG_SINK", "none")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override file port, got %s", cfg.Server.Port)
	}
	if cfg.Evaluation.DefaultVerdict != "deny" {
		t.Errorf("expected deny, got %s", cfg.Evaluation.DefaultVerdict)
	}
	if got := cfg.Permissions.Approvers; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("unexpected approvers %v", got)
	}
	if cfg.Execution.LogSink != "none" {
		t.Errorf("expected none sink, got %s", cfg.Execution.LogSink)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = "abc"
	cfg.Evaluation.DefaultVerdict = "maybe"
	cfg.Evaluation.DenyTieBreak = "middle"
	cfg.Execution.LogSink = "postgres"

	err := Validate(cfg)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Errors) != 4 {
		t.Errorf("expected 4 field errors, got %d: %v", len(verr.Errors), verr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
