// Package config loads the service configuration from an optional YAML file
// and environment variable overrides.
package config

import "time"

// Config is the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres connection. An empty URL selects
// the in-memory stores.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	ErrorSampleRate int    `yaml:"error_sample_rate"`
}

// EvaluationConfig controls how rule results are folded into a verdict
type EvaluationConfig struct {
	// DefaultVerdict applies when no rule matches and the policy is not deny-by-default
	DefaultVerdict string `yaml:"default_verdict"`

	// DenyTieBreak selects which matching deny supplies the reason: "first" or "last"
	DenyTieBreak string `yaml:"deny_tie_break"`

	// CacheTTL bounds how long parsed rulesets are kept; 0 keeps them until evicted
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize caps the number of cached rulesets; 0 means unbounded
	CacheSize int `yaml:"cache_size"`
}

// ExecutionConfig selects where execution records go
type ExecutionConfig struct {
	// LogSink is one of "none", "memory", "postgres"
	LogSink string `yaml:"log_sink"`
}

// PermissionsConfig decides who may approve versions.
// Approvers is checked first; Expression, when set, is a CEL expression over
// actor, policy and roles.
type PermissionsConfig struct {
	Approvers  []string            `yaml:"approvers"`
	Expression string              `yaml:"expression"`
	Roles      map[string][]string `yaml:"roles"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
