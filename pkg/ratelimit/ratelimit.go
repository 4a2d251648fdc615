// Package ratelimit implements a fixed-window request limiter keyed
// by client identity, with standard and legacy rate limit headers and
// a background sweep for stale entries.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
)

// entry tracks one client's window.
type entry struct {
	count       int
	resetTime   time.Time
	lastRequest time.Time
}

// Config controls limiter behavior.
type Config struct {
	// MaxRequests allowed per window.
	MaxRequests int

	// Window is the fixed window length.
	Window time.Duration

	// SweepInterval is how often stale entries are removed once
	// Start is called.
	SweepInterval time.Duration

	// Logger receives operational output. Nil disables logging.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns the general-purpose limit of 100 requests per
// 15 minutes.
func DefaultConfig() Config {
	return Config{
		MaxRequests:   defaults.RateLimitMaxRequests,
		Window:        duration.RateLimitWindow,
		SweepInterval: duration.RateLimitSweep,
	}
}

// Preset limits for common endpoint classes.
func AuthPreset() Config {
	cfg := DefaultConfig()
	cfg.MaxRequests = 5
	cfg.Window = time.Minute
	return cfg
}

func APIPreset() Config {
	cfg := DefaultConfig()
	cfg.MaxRequests = 60
	cfg.Window = time.Minute
	return cfg
}

func PublicPreset() Config {
	cfg := DefaultConfig()
	cfg.MaxRequests = 100
	cfg.Window = time.Minute
	return cfg
}

func ExpensivePreset() Config {
	cfg := DefaultConfig()
	cfg.MaxRequests = 3
	cfg.Window = 5 * time.Minute
	return cfg
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter is a fixed-window rate limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	started  bool
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Limiter. Zero-value config fields get defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     cfg.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Check records one request for key and decides whether it is within
// the limit. The window resets once its deadline passes.
func (l *Limiter) Check(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetTime) {
		e = &entry{resetTime: now.Add(l.cfg.Window)}
		l.entries[key] = e
	}
	e.count++
	e.lastRequest = now

	d := Decision{
		Limit:     l.cfg.MaxRequests,
		ResetTime: e.resetTime,
	}
	d.Allowed = e.count <= l.cfg.MaxRequests
	d.Remaining = l.cfg.MaxRequests - e.count
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ceilSeconds(e.resetTime.Sub(now))
		l.logger.Debug("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", e.count))
	}
	return d
}

// Status reports key's current window without counting a request.
func (l *Limiter) Status(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	d := Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests}
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetTime) {
		d.ResetTime = now.Add(l.cfg.Window)
		return d
	}
	d.ResetTime = e.resetTime
	d.Remaining = l.cfg.MaxRequests - e.count
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = e.count < l.cfg.MaxRequests
	if !d.Allowed {
		d.RetryAfter = ceilSeconds(e.resetTime.Sub(now))
	}
	return d
}

// Reset clears key's window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start launches the stale entry sweep. It runs until ctx is
// cancelled or Stop is called.
func (l *Limiter) Start(ctx context.Context) {
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
					l.logger.Debug("limiter sweep", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop terminates the sweep and waits for it to exit. Safe to call
// without Start; safe to call twice.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.done
	}
}

// Sweep removes entries whose window expired and returns the count.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetTime) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// ceilSeconds rounds d up to whole seconds, matching the resolution
// of the Retry-After header.
func ceilSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// ClientKey extracts the client identity from a request: the first
// X-Forwarded-For hop, then X-Real-IP, then the connection address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ApplyHeaders writes both the standard RateLimit-* headers and the
// legacy X-RateLimit-* forms. Denied decisions also get Retry-After.
func ApplyHeaders(h http.Header, d Decision) {
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", d.ResetTime.Format(time.RFC3339))
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	}
}
