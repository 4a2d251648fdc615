// Package finding provides the shared vulnerability vocabulary used by all
// scanner packages: vulnerability types, severities, the Vulnerability record,
// scan configuration, and aggregated scan results.
package finding

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// VulnType identifies a class of vulnerability. Values are the
// snake_case wire format used in reports and audit events.
type VulnType string

const (
	// Web application vulnerabilities
	XSS                VulnType = "cross_site_scripting"
	SQLInjection       VulnType = "sql_injection"
	CSRF               VulnType = "cross_site_request_forgery"
	DirectoryTraversal VulnType = "directory_traversal"
	CommandInjection   VulnType = "command_injection"

	// Configuration vulnerabilities
	WeakCipher             VulnType = "weak_cipher"
	InsecureHeaders        VulnType = "insecure_headers"
	MissingSecurityHeaders VulnType = "missing_security_headers"
	ExposedSensitiveData   VulnType = "exposed_sensitive_data"
	WeakSessionConfig      VulnType = "weak_session_config"
	InsecureCookies        VulnType = "insecure_cookies"

	// Infrastructure vulnerabilities
	OutdatedDependencies   VulnType = "outdated_dependencies"
	WeakSSLConfig          VulnType = "weak_ssl_config"
	OpenPorts              VulnType = "open_ports"
	WeakPasswords          VulnType = "weak_passwords"
	MissingSecurityUpdates VulnType = "missing_security_updates"

	// Access control vulnerabilities
	PrivilegeEscalation  VulnType = "privilege_escalation"
	BrokenAccessControl  VulnType = "broken_access_control"
	InsecureDirectObject VulnType = "insecure_direct_object_reference"
	MissingAuthorization VulnType = "missing_authorization"

	// Data vulnerabilities
	SensitiveDataExposure  VulnType = "sensitive_data_exposure"
	InsufficientEncryption VulnType = "insufficient_encryption"
	DataValidationBypass   VulnType = "data_validation_bypass"

	// API vulnerabilities
	BrokenAPIAuthentication VulnType = "broken_api_authentication"
	ExcessiveDataExposure   VulnType = "excessive_data_exposure"
	RateLimitingMissing     VulnType = "rate_limiting_missing"

	// Client-side vulnerabilities
	InsecureClientStorage VulnType = "insecure_client_storage"
	ClientSideInjection   VulnType = "client_side_injection"
	CORSMisconfiguration  VulnType = "cors_misconfiguration"
)

// Status tracks the triage state of a vulnerability.
type Status string

const (
	StatusNew           Status = "new"
	StatusAcknowledged  Status = "acknowledged"
	StatusFixed         Status = "fixed"
	StatusFalsePositive Status = "false_positive"
)

// Location pinpoints where a vulnerability was found.
// At most one of URL/File is usually set.
type Location struct {
	URL       string `json:"url,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Component string `json:"component,omitempty"`
}

// Vulnerability is a single confirmed or suspected security finding.
type Vulnerability struct {
	ID             string         `json:"id"`
	Type           VulnType       `json:"type"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Location       Location       `json:"location"`
	Impact         string         `json:"impact"`
	Recommendation string         `json:"recommendation"`
	References     []string       `json:"references,omitempty"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
	Status         Status         `json:"status"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewID returns a fresh unique finding identifier.
func NewID() string {
	return uuid.New().String()
}

// Targets enumerates what a scan should probe.
type Targets struct {
	URLs  []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`
	APIs  []string `json:"apis,omitempty" yaml:"apis,omitempty"`
}

// ScanConfig describes a single scan request.
type ScanConfig struct {
	Targets         Targets           `json:"targets" yaml:"targets"`
	ScanTypes       []VulnType        `json:"scan_types" yaml:"scan_types"`
	Depth           int               `json:"depth,omitempty" yaml:"depth,omitempty"`
	Timeout         time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	CustomHeaders   map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
	FollowRedirects bool              `json:"follow_redirects,omitempty" yaml:"follow_redirects,omitempty"`
	CheckSSL        bool              `json:"check_ssl,omitempty" yaml:"check_ssl,omitempty"`
	Aggressive      bool              `json:"aggressive,omitempty" yaml:"aggressive,omitempty"`
	Method          string            `json:"method,omitempty" yaml:"method,omitempty"`
	Body            string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// TypeCount pairs a vulnerability type with its occurrence count.
type TypeCount struct {
	Type  VulnType `json:"type"`
	Count int      `json:"count"`
}

// ScanSummary aggregates a scan's findings by severity and type.
type ScanSummary struct {
	Total    int         `json:"total"`
	Critical int         `json:"critical"`
	High     int         `json:"high"`
	Medium   int         `json:"medium"`
	Low      int         `json:"low"`
	Info     int         `json:"info"`
	TopTypes []TypeCount `json:"top_vulnerabilities"`
}

// ScanCoverage reports how much ground a scan covered.
type ScanCoverage struct {
	URLsTested  int     `json:"urls_tested"`
	FilesTested int     `json:"files_tested"`
	TestCases   int     `json:"test_cases"`
	SuccessRate float64 `json:"success_rate"`
}

// ScanResult is the complete outcome of one scan run.
type ScanResult struct {
	ID              string          `json:"id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Duration        time.Duration   `json:"duration"`
	Config          ScanConfig      `json:"config"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Summary         ScanSummary     `json:"summary"`
	Coverage        ScanCoverage    `json:"coverage"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Summarize builds a ScanSummary from a list of vulnerabilities,
// including the top types leaderboard capped at max entries.
func Summarize(vulns []Vulnerability, max int) ScanSummary {
	s := ScanSummary{Total: len(vulns)}
	byType := make(map[VulnType]int)

	for _, v := range vulns {
		switch v.Severity {
		case Critical:
			s.Critical++
		case High:
			s.High++
		case Medium:
			s.Medium++
		case Low:
			s.Low++
		case Info:
			s.Info++
		}
		byType[v.Type]++
	}

	for t, c := range byType {
		s.TopTypes = append(s.TopTypes, TypeCount{Type: t, Count: c})
	}
	// Count descending, then type for stability.
	sort.Slice(s.TopTypes, func(i, j int) bool {
		a, b := s.TopTypes[i], s.TopTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if max > 0 && len(s.TopTypes) > max {
		s.TopTypes = s.TopTypes[:max]
	}
	return s
}
