package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window.Std())
	assert.Equal(t, time.Hour, cfg.CSRF.TokenTTL.Std())
	assert.Equal(t, 10000, cfg.Audit.MaxEvents)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, 0.9, cfg.Scanner.SuccessRatio)
	assert.NoError(t, cfg.Validate())
}

func TestReadOverridesDefaults(t *testing.T) {
	yml := `
rate_limit:
  max_requests: 5
  window: 1m
csrf:
  token_ttl: 30m
  allowed_origins:
    - https://app.example.test
log:
  format: json
`
	cfg, err := Read(strings.NewReader(yml))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window.Std())
	assert.Equal(t, 30*time.Minute, cfg.CSRF.TokenTTL.Std())
	assert.Equal(t, []string{"https://app.example.test"}, cfg.CSRF.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10000, cfg.Audit.MaxEvents)
}

func TestReadEmpty(t *testing.T) {
	cfg, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestReadInvalidYAML(t *testing.T) {
	_, err := Read(strings.NewReader("rate_limit: [not a map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max requests", func(c *Config) { c.RateLimit.MaxRequests = 0 }},
		{"negative window", func(c *Config) { c.RateLimit.Window = Duration(-time.Second) }},
		{"zero max events", func(c *Config) { c.Audit.MaxEvents = 0 }},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }},
		{"ratio too high", func(c *Config) { c.Scanner.SuccessRatio = 1.5 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit:\n  max_requests: 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit.MaxRequests)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
