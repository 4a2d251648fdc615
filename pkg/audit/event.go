// Package audit records security-relevant events with automatic risk
// classification, IP masking, and sensitive-field redaction, and
// supports querying, statistics, export, and anomaly detection over
// the recorded trail.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a class of security-relevant event.
type EventType string

const (
	// Authentication events
	LoginSuccess   EventType = "login_success"
	LoginFailure   EventType = "login_failure"
	Logout         EventType = "logout"
	PasswordChange EventType = "password_change"
	AccountLocked  EventType = "account_locked"

	// Authorization events
	AccessGranted        EventType = "access_granted"
	AccessDenied         EventType = "access_denied"
	PermissionEscalation EventType = "permission_escalation"

	// Security events
	RateLimitExceeded   EventType = "rate_limit_exceeded"
	CSRFTokenInvalid    EventType = "csrf_token_invalid"
	XSSAttempt          EventType = "xss_attempt"
	SQLInjectionAttempt EventType = "sql_injection_attempt"
	FileUploadBlocked   EventType = "file_upload_blocked"

	// System events
	ScanStarted           EventType = "security_scan_started"
	ScanCompleted         EventType = "security_scan_completed"
	VulnerabilityDetected EventType = "vulnerability_detected"
	SecurityUpdateApplied EventType = "security_update_applied"

	// Data events
	DataAccess       EventType = "data_access"
	DataModification EventType = "data_modification"
	DataExport       EventType = "data_export"
	DataDeletion     EventType = "data_deletion"

	// Network events
	SuspiciousTraffic  EventType = "suspicious_traffic"
	BlacklistedIP      EventType = "blacklisted_ip"
	GeolocationAnomaly EventType = "geolocation_anomaly"

	// Application events
	ErrorOccurred        EventType = "error_occurred"
	ConfigurationChanged EventType = "configuration_changed"
	BackupCreated        EventType = "backup_created"
	BackupRestored       EventType = "backup_restored"
)

// Outcome values for Event.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeWarning = "warning"
)

// RiskLevel grades an event's security significance.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Weight returns the numeric weight used for risk timelines.
func (r RiskLevel) Weight() int {
	switch r {
	case RiskCritical:
		return 10
	case RiskHigh:
		return 7
	case RiskMedium:
		return 3
	default:
		return 1
	}
}

// Rank orders risk levels for sorting, low first.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	default:
		return 1
	}
}

// Event is one recorded audit entry. IPAddress is stored masked and
// Details is stored with sensitive fields redacted.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	RiskLevel RiskLevel      `json:"risk_level"`
	Source    string         `json:"source"`
	UserAgent string         `json:"user_agent,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Action    string         `json:"action,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

// riskByType maps event types to their fixed risk tier. Unlisted types
// default to low.
var riskByType = map[EventType]RiskLevel{
	SQLInjectionAttempt:   RiskCritical,
	XSSAttempt:            RiskCritical,
	VulnerabilityDetected: RiskCritical,
	AccountLocked:         RiskCritical,

	CSRFTokenInvalid:     RiskHigh,
	PermissionEscalation: RiskHigh,
	SuspiciousTraffic:    RiskHigh,
	LoginFailure:         RiskHigh,

	RateLimitExceeded: RiskMedium,
	AccessDenied:      RiskMedium,
	FileUploadBlocked: RiskMedium,
}

// ClassifyRisk returns the risk tier for an event type.
func ClassifyRisk(t EventType) RiskLevel {
	if r, ok := riskByType[t]; ok {
		return r
	}
	return RiskLow
}

// alwaysLog are event types recorded regardless of the outcome-based
// admission filter.
var alwaysLog = map[EventType]bool{
	CSRFTokenInvalid:      true,
	XSSAttempt:            true,
	SQLInjectionAttempt:   true,
	VulnerabilityDetected: true,
	SuspiciousTraffic:     true,
}

// sensitiveKeys triggers redaction of detail values whose key contains
// any of these substrings, case-insensitively.
var sensitiveKeys = []string{"password", "token", "key", "secret", "credential"}

const redacted = "[REDACTED]"

// RedactDetails returns a copy of details with sensitive values
// replaced. A nil map returns nil.
func RedactDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		lower := strings.ToLower(k)
		hit := false
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				hit = true
				break
			}
		}
		if hit {
			out[k] = redacted
		} else {
			out[k] = v
		}
	}
	return out
}

// MaskIP partially masks an IP address for storage. IPv4 keeps the
// first two octets ("203.0.113.42" becomes "203.0.*.***"); IPv6 keeps
// the first two groups. Already-masked values pass through unchanged.
func MaskIP(ip string) string {
	if ip == "" || strings.Contains(ip, "*") {
		return ip
	}
	if strings.Contains(ip, ":") {
		groups := strings.Split(ip, ":")
		if len(groups) < 3 {
			return ip
		}
		return groups[0] + ":" + groups[1] + ":****"
	}
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return ip
	}
	return octets[0] + "." + octets[1] + ".*.***"
}

func newEventID() string {
	return uuid.New().String()
}
