package apitester

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBackoffBase() != 500*time.Millisecond {
		t.Errorf("RetryBackoffBase = %s, want 500ms", cfg.RetryBackoffBase())
	}
	if cfg.PerCallTimeout() != 30*time.Second {
		t.Errorf("PerCallTimeout = %s, want 30s", cfg.PerCallTimeout())
	}
	if cfg.ChallengeTimeout() != 2*time.Minute {
		t.Errorf("ChallengeTimeout = %s, want 2m", cfg.ChallengeTimeout())
	}
	if cfg.MaxEndpointsPerRun != 50 {
		t.Errorf("MaxEndpointsPerRun = %d, want 50", cfg.MaxEndpointsPerRun)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative backoff", func(c *Config) { c.RetryBackoffBaseMs = -1 }},
		{"zero call timeout", func(c *Config) { c.PerCallTimeoutMs = 0 }},
		{"zero challenge timeout", func(c *Config) { c.ChallengeTimeoutMs = 0 }},
		{"negative rps", func(c *Config) { c.RequestsPerSecond = -1 }},
		{"zero endpoint cap", func(c *Config) { c.MaxEndpointsPerRun = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `log_level: debug
max_retries: 5
requests_per_second: 2.5
max_endpoints_per_run: 10
volatile_segment_patterns:
  - '^v\d+$'
headers:
  X-Api-Key: secret
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.MaxRetries != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %f, want 2.5", cfg.RequestsPerSecond)
	}
	if len(cfg.VolatileSegmentPatterns) != 1 {
		t.Errorf("patterns = %v", cfg.VolatileSegmentPatterns)
	}
	if cfg.Headers["X-Api-Key"] != "secret" {
		t.Errorf("headers = %v", cfg.Headers)
	}
	// Untouched fields keep their defaults.
	if cfg.PerCallTimeoutMs != 30000 {
		t.Errorf("PerCallTimeoutMs = %d, want default 30000", cfg.PerCallTimeoutMs)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"max_retries": 2, "skip_tls_verify": false}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.SkipTLSVerify {
		t.Error("SkipTLSVerify override lost")
	}
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_retries: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected validation error for max_retries: 0")
	}
}
