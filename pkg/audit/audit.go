package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
)

// Config controls logger capacity, retention, and anomaly thresholds.
type Config struct {
	// MaxEvents caps the in-memory trail. Oldest events are dropped
	// first once the cap is reached.
	MaxEvents int

	// Retention is how long events are kept before the sweep removes
	// them.
	Retention time.Duration

	// SweepInterval is how often the retention sweep runs once
	// Start is called.
	SweepInterval time.Duration

	// BruteForceThreshold is the login failures per hour per subject
	// that triggers a brute force anomaly.
	BruteForceThreshold int

	// HyperactiveIPThreshold is the total events from one address
	// that triggers a suspicious address anomaly.
	HyperactiveIPThreshold int

	// LogFailedAttempts records events with a failure outcome.
	LogFailedAttempts bool

	// LogSuccessfulRequests records events with a success outcome.
	// High-risk event types are recorded regardless of either flag.
	LogSuccessfulRequests bool

	// Logger receives operational output. Nil disables logging.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxEvents:              defaults.MaxAuditEvents,
		Retention:              time.Duration(defaults.AuditRetentionDays) * 24 * time.Hour,
		SweepInterval:          duration.AuditSweep,
		BruteForceThreshold:    defaults.BruteForceThreshold,
		HyperactiveIPThreshold: defaults.HyperactiveIPThreshold,
		LogFailedAttempts:      true,
	}
}

// Logger is an in-memory audit trail. All methods are safe for
// concurrent use.
type Logger struct {
	mu     sync.RWMutex
	events []Event

	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	started  bool
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Logger. Zero-value config fields get defaults.
func New(cfg Config) *Logger {
	def := DefaultConfig()
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.Retention == 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.BruteForceThreshold == 0 {
		cfg.BruteForceThreshold = def.BruteForceThreshold
	}
	if cfg.HyperactiveIPThreshold == 0 {
		cfg.HyperactiveIPThreshold = def.HyperactiveIPThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Logger{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Log records one event if the admission filter accepts it. The ID
// and timestamp are assigned here, the risk level is classified from
// the event type (caller-supplied values are ignored), the IP is
// masked, and sensitive details are redacted. It returns the stored
// event and whether it was recorded.
func (l *Logger) Log(e Event) (Event, bool) {
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	if !l.shouldLog(e.Type, e.Outcome) {
		return Event{}, false
	}

	e.ID = newEventID()
	e.Timestamp = l.now()
	e.RiskLevel = ClassifyRisk(e.Type)
	if e.Source == "" {
		e.Source = "system"
	}
	e.IPAddress = MaskIP(e.IPAddress)
	e.Details = RedactDetails(e.Details)

	l.mu.Lock()
	l.events = append(l.events, e)
	if over := len(l.events) - l.cfg.MaxEvents; over > 0 {
		l.events = l.events[over:]
	}
	l.mu.Unlock()

	if e.RiskLevel == RiskHigh || e.RiskLevel == RiskCritical {
		l.logger.Warn("high risk audit event",
			slog.String("type", string(e.Type)),
			slog.String("risk", string(e.RiskLevel)),
			slog.String("user", e.UserID),
			slog.String("ip", e.IPAddress))
	}
	return e, true
}

// shouldLog applies the admission filter: failures and successes are
// opt-in per config, high-risk event types are always recorded.
func (l *Logger) shouldLog(t EventType, outcome string) bool {
	if outcome == OutcomeFailure && l.cfg.LogFailedAttempts {
		return true
	}
	if outcome == OutcomeSuccess && l.cfg.LogSuccessfulRequests {
		return true
	}
	return alwaysLog[t]
}

// LogAuthEvent records a login attempt.
func (l *Logger) LogAuthEvent(success bool, userID, ip, userAgent string, details map[string]any) (Event, bool) {
	t, outcome := LoginSuccess, OutcomeSuccess
	if !success {
		t, outcome = LoginFailure, OutcomeFailure
	}
	return l.Log(Event{
		Type:      t,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Outcome:   outcome,
		Details:   details,
		Tags:      []string{"authentication"},
	})
}

// LogSecurityViolation records a violation of the given type with a
// failure outcome.
func (l *Logger) LogSecurityViolation(t EventType, ip, userAgent string, details map[string]any) (Event, bool) {
	return l.Log(Event{
		Type:      t,
		IPAddress: ip,
		UserAgent: userAgent,
		Outcome:   OutcomeFailure,
		Details:   details,
		Tags:      []string{"security", "violation"},
	})
}

// LogDataAccess records a data operation against a resource.
func (l *Logger) LogDataAccess(resource, action, userID, outcome string, details map[string]any) (Event, bool) {
	return l.Log(Event{
		Type:     DataAccess,
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Outcome:  outcome,
		Details:  details,
		Tags:     []string{"data", "access"},
	})
}

// Len returns the number of stored events.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Start launches the retention sweep. It runs until ctx is cancelled
// or Stop is called.
func (l *Logger) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				removed := l.Sweep()
				if removed > 0 {
					l.logger.Info("retention sweep", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop terminates the retention sweep and waits for it to exit.
// Safe to call without Start; safe to call twice.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.RLock()
	started := l.started
	l.mu.RUnlock()
	if started {
		<-l.done
	}
}

// Sweep removes events older than the retention window and returns
// how many were dropped.
func (l *Logger) Sweep() int {
	cutoff := l.now().Add(-l.cfg.Retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Events are appended in time order, so find the first survivor.
	idx := 0
	for idx < len(l.events) && l.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	l.events = append([]Event(nil), l.events[idx:]...)
	return idx
}
