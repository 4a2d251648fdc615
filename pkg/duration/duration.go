// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ContextShort)
//	Timeout: duration.HTTPScanning,
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// HTTPProbing is for quick fingerprinting and rate-limit probes (5s)
	HTTPProbing = 5 * time.Second

	// HTTPScanning is for payload-driven vulnerability scanning (30s) - the default
	HTTPScanning = 30 * time.Second

	// HTTPLongOps is for crawling and authenticated flows (5min)
	HTTPLongOps = 5 * time.Minute
)

// ============================================================================
// CONTEXT/OPERATION TIMEOUTS
// ============================================================================

const (
	// ContextShort is for quick operations (30s)
	ContextShort = 30 * time.Second

	// ContextMedium is for standard operations (5min)
	ContextMedium = 5 * time.Minute

	// ContextMax is for full scan operations (30min)
	ContextMax = 30 * time.Minute
)

// ============================================================================
// DETECTION THRESHOLDS
// ============================================================================

const (
	// SQLiInducedDelay is the delay requested by time-based payloads (5s)
	SQLiInducedDelay = 5 * time.Second

	// SQLiTimeThreshold flags a delayed response as time-based injection (4s)
	SQLiTimeThreshold = 4 * time.Second

	// BruteForceWindow is the lookback window for login-failure anomalies (1h)
	BruteForceWindow = 1 * time.Hour
)

// ============================================================================
// ADMISSION WINDOWS
// ============================================================================

const (
	// RateLimitWindow is the default fixed admission window (15min)
	RateLimitWindow = 15 * time.Minute

	// RateLimitSweep is the interval for purging expired limiter entries (5min)
	RateLimitSweep = 5 * time.Minute

	// CSRFTokenTTL is the default CSRF token lifetime (1h)
	CSRFTokenTTL = 1 * time.Hour

	// AuditSweep is the interval for the audit retention sweep (24h)
	AuditSweep = 24 * time.Hour
)

// ============================================================================
// NETWORK/TRANSPORT
// ============================================================================

const (
	// DialTimeout is for establishing TCP connections (10s)
	DialTimeout = 10 * time.Second

	// KeepAlive is for TCP keep-alive interval (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout is for idle connection pool timeout (90s)
	IdleConnTimeout = 90 * time.Second

	// TLSHandshake is for TLS handshake timeout (10s)
	TLSHandshake = 10 * time.Second

	// MetricsShutdown bounds metrics server shutdown (5s)
	MetricsShutdown = 5 * time.Second

	// MetricsWriteTimeout is the metrics server write timeout (10s)
	MetricsWriteTimeout = 10 * time.Second
)
