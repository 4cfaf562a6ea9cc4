// Package apitester is the public entry point: it wires capture parsing,
// endpoint reconstruction, classification, and live verification into one
// runner.
package apitester

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls a verification run.
type Config struct {
	// Logging
	LogLevel   string `yaml:"log_level" json:"log_level"`
	PrettyLogs bool   `yaml:"pretty_logs" json:"pretty_logs"`

	// Retry policy for network and timeout failures.
	MaxRetries         int `yaml:"max_retries" json:"max_retries"`
	RetryBackoffBaseMs int `yaml:"retry_backoff_base_ms" json:"retry_backoff_base_ms"`

	// Timeouts
	PerCallTimeoutMs   int `yaml:"per_call_timeout_ms" json:"per_call_timeout_ms"`
	ChallengeTimeoutMs int `yaml:"challenge_timeout_ms" json:"challenge_timeout_ms"`

	// Challenge handling
	MaxChallengeAttempts int `yaml:"max_challenge_attempts" json:"max_challenge_attempts"`

	// Pacing and scope
	RequestsPerSecond  float64 `yaml:"requests_per_second" json:"requests_per_second"`
	MaxEndpointsPerRun int     `yaml:"max_endpoints_per_run" json:"max_endpoints_per_run"`

	// Transport
	SkipTLSVerify bool              `yaml:"skip_tls_verify" json:"skip_tls_verify"`
	UserAgent     string            `yaml:"user_agent" json:"user_agent"`
	Headers       map[string]string `yaml:"headers" json:"headers"`

	// Normalization
	VolatileSegmentPatterns []string `yaml:"volatile_segment_patterns" json:"volatile_segment_patterns"`

	// Persistence
	StorePath string `yaml:"store_path" json:"store_path"`
	// ResumeSessionFrom imports the session state saved by a previous run.
	ResumeSessionFrom string `yaml:"resume_session_from" json:"resume_session_from"`

	// Output
	OutputFile   string `yaml:"output_file" json:"output_file"`
	OutputFormat string `yaml:"output_format" json:"output_format"`
	PrettyOutput bool   `yaml:"pretty_output" json:"pretty_output"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:             "info",
		MaxRetries:           3,
		RetryBackoffBaseMs:   500,
		PerCallTimeoutMs:     30000,
		ChallengeTimeoutMs:   120000,
		MaxChallengeAttempts: 3,
		RequestsPerSecond:    1,
		MaxEndpointsPerRun:   50,
		SkipTLSVerify:        true,
		UserAgent:            "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		StorePath:            "apitester.db",
		OutputFormat:         "json",
		PrettyOutput:         true,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, layered over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryBackoffBaseMs < 0 {
		return fmt.Errorf("retry_backoff_base_ms must not be negative, got %d", c.RetryBackoffBaseMs)
	}
	if c.PerCallTimeoutMs <= 0 {
		return fmt.Errorf("per_call_timeout_ms must be positive, got %d", c.PerCallTimeoutMs)
	}
	if c.ChallengeTimeoutMs <= 0 {
		return fmt.Errorf("challenge_timeout_ms must be positive, got %d", c.ChallengeTimeoutMs)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %f", c.RequestsPerSecond)
	}
	if c.MaxEndpointsPerRun < 1 {
		return fmt.Errorf("max_endpoints_per_run must be at least 1, got %d", c.MaxEndpointsPerRun)
	}
	return nil
}

// PerCallTimeout returns the per-request timeout as a duration.
func (c *Config) PerCallTimeout() time.Duration {
	return time.Duration(c.PerCallTimeoutMs) * time.Millisecond
}

// ChallengeTimeout returns the challenge resolution timeout as a duration.
func (c *Config) ChallengeTimeout() time.Duration {
	return time.Duration(c.ChallengeTimeoutMs) * time.Millisecond
}

// RetryBackoffBase returns the initial retry delay as a duration.
func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMs) * time.Millisecond
}
