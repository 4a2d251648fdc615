// Package config loads the application configuration from YAML and
// supplies production defaults for anything unset.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
)

// Duration wraps time.Duration so YAML can carry values like "15m"
// or "90s". Bare integers are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Scanner   ScannerConfig   `yaml:"scanner"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CSRF      CSRFConfig      `yaml:"csrf"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ScannerConfig tunes the scan engine.
type ScannerConfig struct {
	Timeout       Duration `yaml:"timeout"`
	UserAgent     string   `yaml:"user_agent"`
	ProbeRequests int      `yaml:"probe_requests"`
	SuccessRatio  float64  `yaml:"success_ratio"`
	MaxResults    int      `yaml:"max_results"`
	SkipVerify    bool     `yaml:"skip_verify"`
}

// RateLimitConfig tunes the admission rate limiter.
type RateLimitConfig struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// CSRFConfig tunes CSRF protection.
type CSRFConfig struct {
	TokenTTL       Duration `yaml:"token_ttl"`
	Secure         bool     `yaml:"secure"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuditConfig tunes the audit trail.
type AuditConfig struct {
	MaxEvents              int  `yaml:"max_events"`
	RetentionDays          int  `yaml:"retention_days"`
	BruteForceThreshold    int  `yaml:"brute_force_threshold"`
	HyperactiveIPThreshold int  `yaml:"hyperactive_ip_threshold"`
	LogFailedAttempts      bool `yaml:"log_failed_attempts"`
	LogSuccessfulRequests  bool `yaml:"log_successful_requests"`
}

// MetricsConfig controls the Prometheus scrape server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		Scanner: ScannerConfig{
			Timeout:       Duration(duration.HTTPScanning),
			UserAgent:     defaults.UAMinimal,
			ProbeRequests: defaults.ProbeRequests,
			SuccessRatio:  defaults.ProbeSuccessRatio,
			MaxResults:    100,
			SkipVerify:    true,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: defaults.RateLimitMaxRequests,
			Window:      Duration(duration.RateLimitWindow),
		},
		CSRF: CSRFConfig{
			TokenTTL: Duration(duration.CSRFTokenTTL),
			Secure:   true,
		},
		Audit: AuditConfig{
			MaxEvents:              defaults.MaxAuditEvents,
			RetentionDays:          defaults.AuditRetentionDays,
			BruteForceThreshold:    defaults.BruteForceThreshold,
			HyperactiveIPThreshold: defaults.HyperactiveIPThreshold,
			LogFailedAttempts:      true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Read decodes YAML from r over the defaults.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads the config file at path over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Validate rejects values that would misbehave at runtime.
func (c Config) Validate() error {
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window.Std())
	}
	if c.Audit.MaxEvents < 1 {
		return fmt.Errorf("audit.max_events must be positive, got %d", c.Audit.MaxEvents)
	}
	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retention_days must be positive, got %d", c.Audit.RetentionDays)
	}
	if c.Scanner.SuccessRatio <= 0 || c.Scanner.SuccessRatio > 1 {
		return fmt.Errorf("scanner.success_ratio must be in (0,1], got %g", c.Scanner.SuccessRatio)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
