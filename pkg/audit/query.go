package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
	"github.com/websentry/websentry/pkg/jsonutil"
)

// Sort fields accepted by Query.SortBy.
const (
	SortByTimestamp = "timestamp"
	SortByRiskLevel = "risk_level"
)

// Query filters the audit trail. Zero-value fields match everything.
// Results default to newest first; SortBy and SortOrder override that,
// and Offset/Limit paginate.
type Query struct {
	Types      []EventType
	RiskLevels []RiskLevel
	UserID     string
	IPAddress  string
	Outcome    string
	Tags       []string
	Since      time.Time
	Until      time.Time
	Offset     int
	Limit      int
	SortBy     string // timestamp or risk_level
	SortOrder  string // asc or desc
}

// Events returns events matching q, sorted and paginated per the
// query (default: newest first, limit 100).
func (l *Logger) Events(q Query) []Event {
	limit := q.Limit
	if limit <= 0 {
		limit = defaults.QueryLimit
	}

	l.mu.RLock()
	matched := make([]Event, 0, limit)
	for _, e := range l.events {
		if q.matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	ascending := q.SortOrder == "asc"
	if q.SortBy == SortByRiskLevel {
		sort.SliceStable(matched, func(i, j int) bool {
			if ascending {
				return matched[i].RiskLevel.Rank() < matched[j].RiskLevel.Rank()
			}
			return matched[i].RiskLevel.Rank() > matched[j].RiskLevel.Rank()
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			if ascending {
				return matched[i].Timestamp.Before(matched[j].Timestamp)
			}
			return matched[i].Timestamp.After(matched[j].Timestamp)
		})
	}

	if q.Offset >= len(matched) {
		return nil
	}
	matched = matched[q.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (q Query) matches(e Event) bool {
	if len(q.Types) > 0 && !containsType(q.Types, e.Type) {
		return false
	}
	if len(q.RiskLevels) > 0 && !containsRisk(q.RiskLevels, e.RiskLevel) {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.IPAddress != "" && e.IPAddress != MaskIP(q.IPAddress) {
		return false
	}
	if q.Outcome != "" && e.Outcome != q.Outcome {
		return false
	}
	if len(q.Tags) > 0 && !tagsOverlap(q.Tags, e.Tags) {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}

func containsType(ts []EventType, t EventType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func containsRisk(rs []RiskLevel, r RiskLevel) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func tagsOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// AddressCount pairs a masked address with its event count.
type AddressCount struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// UserCount pairs a user ID with its event count.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// TimelineBucket is one day of activity with its mean risk score.
type TimelineBucket struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	RiskScore int    `json:"risk_score"`
}

// Statistics summarizes the current trail.
type Statistics struct {
	Total        int               `json:"total"`
	ByType       map[EventType]int `json:"by_type"`
	ByRisk       map[RiskLevel]int `json:"by_risk"`
	ByOutcome    map[string]int    `json:"by_outcome"`
	TopAddresses []AddressCount    `json:"top_addresses"`
	TopUsers     []UserCount       `json:"top_users"`
	FailedLogins int               `json:"failed_logins"`
	Timeline     []TimelineBucket  `json:"timeline"`
}

// Stats computes summary statistics over every stored event.
func (l *Logger) Stats() Statistics {
	l.mu.RLock()
	events := make([]Event, len(l.events))
	copy(events, l.events)
	l.mu.RUnlock()

	stats := Statistics{
		ByType: make(map[EventType]int),
		ByRisk: map[RiskLevel]int{
			RiskLow: 0, RiskMedium: 0, RiskHigh: 0, RiskCritical: 0,
		},
		ByOutcome: map[string]int{
			OutcomeSuccess: 0, OutcomeFailure: 0, OutcomeWarning: 0,
		},
	}
	byAddr := make(map[string]int)
	byUser := make(map[string]int)
	byDay := make(map[string]*TimelineBucket)

	for _, e := range events {
		stats.Total++
		stats.ByType[e.Type]++
		stats.ByRisk[e.RiskLevel]++
		stats.ByOutcome[e.Outcome]++
		if e.Type == LoginFailure {
			stats.FailedLogins++
		}
		if e.IPAddress != "" {
			byAddr[e.IPAddress]++
		}
		if e.UserID != "" {
			byUser[e.UserID]++
		}

		day := e.Timestamp.Format("2006-01-02")
		b, ok := byDay[day]
		if !ok {
			b = &TimelineBucket{Date: day}
			byDay[day] = b
		}
		b.Count++
		b.RiskScore += e.RiskLevel.Weight()
	}

	for addr, count := range byAddr {
		stats.TopAddresses = append(stats.TopAddresses, AddressCount{Address: addr, Count: count})
	}
	sort.Slice(stats.TopAddresses, func(i, j int) bool {
		a, b := stats.TopAddresses[i], stats.TopAddresses[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Address < b.Address
	})
	if len(stats.TopAddresses) > defaults.TopAddresses {
		stats.TopAddresses = stats.TopAddresses[:defaults.TopAddresses]
	}

	for user, count := range byUser {
		stats.TopUsers = append(stats.TopUsers, UserCount{UserID: user, Count: count})
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		a, b := stats.TopUsers[i], stats.TopUsers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.UserID < b.UserID
	})
	if len(stats.TopUsers) > defaults.TopAddresses {
		stats.TopUsers = stats.TopUsers[:defaults.TopAddresses]
	}

	for _, b := range byDay {
		// The bucket accumulated total weight; store the rounded mean.
		b.RiskScore = (b.RiskScore + b.Count/2) / b.Count
		stats.Timeline = append(stats.Timeline, *b)
	}
	sort.Slice(stats.Timeline, func(i, j int) bool {
		return stats.Timeline[i].Date < stats.Timeline[j].Date
	})

	return stats
}

// ExportJSON writes the events matching q as an indented JSON array.
func (l *Logger) ExportJSON(w io.Writer, q Query) error {
	out, err := jsonutil.MarshalIndent(l.Events(q), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// csvHeader is the fixed export column set. Details are flattened to
// one JSON-encoded cell.
var csvHeader = []string{
	"id", "timestamp", "event_type", "risk_level",
	"source", "ip_address", "user_id", "outcome", "details",
}

// ExportCSV writes the events matching q as CSV with a header row.
func (l *Logger) ExportCSV(w io.Writer, q Query) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range l.Events(q) {
		details := "{}"
		if len(e.Details) > 0 {
			raw, err := jsonutil.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encode details: %w", err)
			}
			details = string(raw)
		}
		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339),
			string(e.Type),
			string(e.RiskLevel),
			e.Source,
			e.IPAddress,
			e.UserID,
			e.Outcome,
			details,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Anomaly is a suspicious pattern detected in the trail.
type Anomaly struct {
	Type        string    `json:"type"`
	Severity    RiskLevel `json:"severity"`
	Subject     string    `json:"subject,omitempty"`
	Count       int       `json:"count"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// DetectAnomalies scans the trail for a recent brute force burst and
// for hyperactive addresses.
func (l *Logger) DetectAnomalies() []Anomaly {
	l.mu.RLock()
	events := make([]Event, len(l.events))
	copy(events, l.events)
	l.mu.RUnlock()

	now := l.now()
	var anomalies []Anomaly
	cutoff := now.Add(-duration.BruteForceWindow)

	recentFailures := 0
	perAddr := make(map[string]int)
	for _, e := range events {
		if e.IPAddress != "" {
			perAddr[e.IPAddress]++
		}
		if e.Type == LoginFailure && !e.Timestamp.Before(cutoff) {
			recentFailures++
		}
	}

	if recentFailures > l.cfg.BruteForceThreshold {
		anomalies = append(anomalies, Anomaly{
			Type:        "brute_force",
			Severity:    RiskHigh,
			Count:       recentFailures,
			Timestamp:   now,
			Description: fmt.Sprintf("%d login failures in the last hour", recentFailures),
		})
	}
	var addrs []string
	for addr, count := range perAddr {
		if count > l.cfg.HyperactiveIPThreshold {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		anomalies = append(anomalies, Anomaly{
			Type:        "suspicious_ip",
			Severity:    RiskMedium,
			Subject:     addr,
			Count:       perAddr[addr],
			Timestamp:   now,
			Description: fmt.Sprintf("address %s generated %d events", addr, perAddr[addr]),
		})
	}

	return anomalies
}
