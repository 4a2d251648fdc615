// Package admission composes the request protection layers into one
// middleware gate: security headers, rate limiting, and CSRF
// validation, with audit logging and metrics on rejections.
package admission

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/websentry/websentry/pkg/audit"
	"github.com/websentry/websentry/pkg/csrf"
	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/jsonutil"
	"github.com/websentry/websentry/pkg/metrics"
	"github.com/websentry/websentry/pkg/ratelimit"
	"github.com/websentry/websentry/pkg/secheaders"
)

// Config wires the gate's layers. Nil layers are skipped.
type Config struct {
	RateLimit *ratelimit.Limiter
	CSRF      *csrf.Protector
	Headers   *secheaders.Writer
	Audit     *audit.Logger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Gate is the composed admission middleware.
type Gate struct {
	limiter   *ratelimit.Limiter
	protector *csrf.Protector
	headers   *secheaders.Writer
	auditLog  *audit.Logger
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Gate with default layers for any left nil, except
// audit and metrics which stay optional.
func New(cfg Config) *Gate {
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.New(ratelimit.DefaultConfig())
	}
	if cfg.CSRF == nil {
		cfg.CSRF = csrf.New(csrf.Config{})
	}
	if cfg.Headers == nil {
		cfg.Headers = secheaders.New(secheaders.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		limiter:   cfg.RateLimit,
		protector: cfg.CSRF,
		headers:   cfg.Headers,
		auditLog:  cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Limiter returns the gate's rate limiter.
func (g *Gate) Limiter() *ratelimit.Limiter { return g.limiter }

// Protector returns the gate's CSRF protector.
func (g *Gate) Protector() *csrf.Protector { return g.protector }

// Start launches the background sweeps of the composed layers.
func (g *Gate) Start(ctx context.Context) {
	g.limiter.Start(ctx)
}

// Stop terminates the background sweeps.
func (g *Gate) Stop() {
	g.limiter.Stop()
}

type rejection struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Middleware applies headers, then rate limiting, then CSRF
// validation, before handing the request to next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.headers.Apply(w.Header())

		key := ratelimit.ClientKey(r)
		decision := g.limiter.Check(key)
		ratelimit.ApplyHeaders(w.Header(), decision)
		if !decision.Allowed {
			g.rejectRateLimited(w, r, key, decision)
			return
		}

		if safeMethod(r.Method) {
			// Give token-less clients a cookie so their next
			// state-changing request can pass the double-submit check.
			if _, err := r.Cookie(csrf.CookieName); err != nil {
				if _, err := g.protector.IssueCookie(w); err != nil {
					g.logger.Warn("csrf token issuance failed", slog.String("error", err.Error()))
				}
			}
		} else if err := g.protector.ValidateRequest(r); err != nil {
			g.rejectCSRF(w, r, key, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) rejectRateLimited(w http.ResponseWriter, r *http.Request, key string, d ratelimit.Decision) {
	if g.auditLog != nil {
		stored, ok := g.auditLog.Log(audit.Event{
			Type:      audit.RateLimitExceeded,
			IPAddress: key,
			UserAgent: r.UserAgent(),
			Resource:  r.URL.Path,
			Outcome:   audit.OutcomeFailure,
			Tags:      []string{"security", "rate_limit"},
		})
		if ok && g.metrics != nil {
			g.metrics.AuditEvents.WithLabelValues(string(stored.RiskLevel)).Inc()
		}
	}
	if g.metrics != nil {
		g.metrics.RateLimitDenied.Inc()
	}
	g.logger.Debug("request rate limited",
		slog.String("key", key),
		slog.String("path", r.URL.Path))

	w.Header().Set("Content-Type", defaults.ContentTypeJSON)
	w.WriteHeader(http.StatusTooManyRequests)
	_ = jsonutil.MarshalWrite(w, rejection{
		Error:      "rate limit exceeded",
		RetryAfter: int(d.RetryAfter.Seconds()),
	})
}

func (g *Gate) rejectCSRF(w http.ResponseWriter, r *http.Request, key string, err error) {
	if g.auditLog != nil {
		stored, ok := g.auditLog.LogSecurityViolation(audit.CSRFTokenInvalid, key, r.UserAgent(), map[string]any{
			"path":   r.URL.Path,
			"reason": err.Error(),
		})
		if ok && g.metrics != nil {
			g.metrics.AuditEvents.WithLabelValues(string(stored.RiskLevel)).Inc()
		}
	}
	if g.metrics != nil {
		g.metrics.CSRFRejected.Inc()
	}
	g.logger.Warn("csrf validation failed",
		slog.String("key", key),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	w.Header().Set("Content-Type", defaults.ContentTypeJSON)
	w.WriteHeader(http.StatusForbidden)
	_ = jsonutil.MarshalWrite(w, rejection{Error: err.Error()})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
