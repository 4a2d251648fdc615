// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	config.MaxRequests = defaults.RateLimitMaxRequests
//	req.Header.Set("Content-Type", defaults.ContentTypeForm)
//
// DO NOT use hardcoded values like `MaxRequests: 100` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import "fmt"

// Version is the current websentry version
const Version = "2.0.0"

// ============================================================================
// ADMISSION LIMITS
// ============================================================================

const (
	// RateLimitMaxRequests is requests allowed per IP per window (100)
	RateLimitMaxRequests = 100

	// MaxAuditEvents is the in-memory audit event cap (10000)
	MaxAuditEvents = 10000

	// AuditRetentionDays is how long audit events are kept (90)
	AuditRetentionDays = 90

	// BruteForceThreshold flags login failures per hour as an anomaly (10)
	BruteForceThreshold = 10

	// HyperactiveIPThreshold flags total events from one IP as an anomaly (100)
	HyperactiveIPThreshold = 100
)

// ============================================================================
// VALIDATION LIMITS
// ============================================================================

const (
	// MaxFieldLength is the maximum accepted text field length (1000)
	MaxFieldLength = 1000

	// MaxFileSize is the maximum accepted upload size (10MB)
	MaxFileSize = 10 * 1024 * 1024

	// MaxFilenameLength caps sanitized filenames (255)
	MaxFilenameLength = 255
)

// ============================================================================
// SCANNING
// ============================================================================

const (
	// ProbeRequests is the burst size for the rate-limit probe (100)
	ProbeRequests = 100

	// ProbeSuccessRatio marks rate limiting as absent when exceeded (0.9)
	ProbeSuccessRatio = 0.9

	// ProbePacePerSecond bounds the rate-limit probe burst (50 req/s)
	ProbePacePerSecond = 50

	// BooleanLengthDelta is the body-size divergence for blind SQLi (100 bytes)
	BooleanLengthDelta = 100

	// HSTSMinMaxAge is the minimum acceptable HSTS max-age (1 year)
	HSTSMinMaxAge = 31536000

	// TestCasesPerScanType approximates coverage reporting (10)
	TestCasesPerScanType = 10

	// TopVulnerabilityTypes caps the summary leaderboard (5)
	TopVulnerabilityTypes = 5

	// TopAddresses caps the audit statistics leaderboards (10)
	TopAddresses = 10
)

// ============================================================================
// QUERY DEFAULTS
// ============================================================================

const (
	// QueryLimit is the default audit query page size (100)
	QueryLimit = 100
)

// ============================================================================
// HTTP CONTENT TYPES
// ============================================================================

const (
	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// ContentTypeForm is application/x-www-form-urlencoded
	ContentTypeForm = "application/x-www-form-urlencoded"

	// ContentTypeHTML is text/html
	ContentTypeHTML = "text/html"

	// ContentTypePlain is text/plain
	ContentTypePlain = "text/plain"
)

// ============================================================================
// USER AGENTS
// ============================================================================

const (
	// UAMinimal is a minimal user agent
	UAMinimal = "websentry/" + Version
)

// UserAgent returns the websentry user agent with context
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("websentry/%s (%s)", Version, context)
}

// ============================================================================
// THRESHOLDS
// ============================================================================

const (
	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects = 10

	// MaxEvidenceBytes caps response excerpts stored in findings (500)
	MaxEvidenceBytes = 500

	// MaxCookieEvidence caps Set-Cookie excerpts stored in findings (100)
	MaxCookieEvidence = 100
)
