package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the YAML config file path
const EnvConfigPath = "POLICIES_CONFIG"

// Load reads the YAML file at path (skipped when path is empty), applies
// defaults and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by POLICIES_CONFIG, if any
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// applyEnvOverrides runs before defaults so that an override of DATABASE_URL
// also drives the default log sink.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PORT"); val != "" {
		cfg.Server.Port = val
	}
	if val := os.Getenv("POLICIES_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Database.URL = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("ERROR_SAMPLE_RATE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Logging.ErrorSampleRate = i
		}
	}

	if val := os.Getenv("POLICIES_DEFAULT_VERDICT"); val != "" {
		cfg.Evaluation.DefaultVerdict = strings.ToLower(val)
	}
	if val := os.Getenv("POLICIES_DENY_TIE_BREAK"); val != "" {
		cfg.Evaluation.DenyTieBreak = strings.ToLower(val)
	}
	if val := os.Getenv("POLICIES_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Evaluation.CacheTTL = d
		}
	}

	if val := os.Getenv("POLICIES_LOG_SINK"); val != "" {
		cfg.Execution.LogSink = strings.ToLower(val)
	}

	if val := os.Getenv("POLICIES_APPROVERS"); val != "" {
		cfg.Permissions.Approvers = splitList(val)
	}
	if val := os.Getenv("POLICIES_APPROVAL_EXPRESSION"); val != "" {
		cfg.Permissions.Expression = val
	}

	if val := os.Getenv("POLICIES_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
