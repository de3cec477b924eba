package config

import "time"

const (
	DefaultPort            = "8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultMaxOpenConns = 25
	DefaultMaxIdleConns = 5

	DefaultLogLevel        = "INFO"
	DefaultErrorSampleRate = 1

	DefaultVerdict      = "allow"
	DefaultDenyTieBreak = "first"
	DefaultCacheSize    = 1024

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "policies"
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Booleans are left as they are.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Port == "" {
		s.Port = DefaultPort
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultMaxIdleConns
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.ErrorSampleRate == 0 {
		cfg.Logging.ErrorSampleRate = DefaultErrorSampleRate
	}

	if cfg.Evaluation.DefaultVerdict == "" {
		cfg.Evaluation.DefaultVerdict = DefaultVerdict
	}
	if cfg.Evaluation.DenyTieBreak == "" {
		cfg.Evaluation.DenyTieBreak = DefaultDenyTieBreak
	}
	if cfg.Evaluation.CacheSize == 0 {
		cfg.Evaluation.CacheSize = DefaultCacheSize
	}

	if cfg.Execution.LogSink == "" {
		if cfg.Database.URL != "" {
			cfg.Execution.LogSink = "postgres"
		} else {
			cfg.Execution.LogSink = "memory"
		}
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
