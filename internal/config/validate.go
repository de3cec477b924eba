package config

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldError is a validation failure of a single field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found in a configuration
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate returns a *ValidationError listing every invalid field, or nil
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if p, err := strconv.Atoi(cfg.Server.Port); err != nil || p < 1 || p > 65535 {
		add("server.port", "must be a port number between 1 and 65535, got %q", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout < 0 {
		add("server.request_timeout", "must not be negative")
	}

	if cfg.Database.MaxOpenConns < 0 {
		add("database.max_open_conns", "must not be negative")
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns && cfg.Database.MaxOpenConns > 0 {
		add("database.max_idle_conns", "must not exceed max_open_conns")
	}

	switch strings.ToUpper(cfg.Logging.Level) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "FATAL":
	default:
		add("logging.level", "unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.ErrorSampleRate < 1 {
		add("logging.error_sample_rate", "must be at least 1")
	}

	switch cfg.Evaluation.DefaultVerdict {
	case "allow", "deny":
	default:
		add("evaluation.default_verdict", "must be allow or deny, got %q", cfg.Evaluation.DefaultVerdict)
	}
	switch cfg.Evaluation.DenyTieBreak {
	case "first", "last":
	default:
		add("evaluation.deny_tie_break", "must be first or last, got %q", cfg.Evaluation.DenyTieBreak)
	}
	if cfg.Evaluation.CacheTTL < 0 {
		add("evaluation.cache_ttl", "must not be negative")
	}
	if cfg.Evaluation.CacheSize < 0 {
		add("evaluation.cache_size", "must not be negative")
	}

	switch cfg.Execution.LogSink {
	case "none", "memory":
	case "postgres":
		if cfg.Database.URL == "" {
			add("execution.log_sink", "postgres sink requires database.url")
		}
	default:
		add("execution.log_sink", "must be none, memory or postgres, got %q", cfg.Execution.LogSink)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with /")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
