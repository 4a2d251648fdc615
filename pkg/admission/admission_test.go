package admission

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websentry/websentry/pkg/audit"
	"github.com/websentry/websentry/pkg/csrf"
	"github.com/websentry/websentry/pkg/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGateAllowsSafeRequest(t *testing.T) {
	g := New(Config{})
	rec := httptest.NewRecorder()

	g.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "100", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("RateLimit-Remaining"))
}

func TestGateRateLimits(t *testing.T) {
	auditLog := audit.New(audit.Config{LogFailedAttempts: true})
	g := New(Config{
		RateLimit: ratelimit.New(ratelimit.Config{MaxRequests: 2, Window: time.Minute}),
		Audit:     auditLog,
	})
	handler := g.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	r.RemoteAddr = "192.0.2.1:1000"
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	events := auditLog.Events(audit.Query{Types: []audit.EventType{audit.RateLimitExceeded}})
	assert.Len(t, events, 1)
}

func TestGateIssuesTokenOnSafeMethod(t *testing.T) {
	protector := csrf.New(csrf.Config{})
	g := New(Config{CSRF: protector})
	handler := g.Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var issued *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName {
			issued = c
		}
	}
	require.NotNil(t, issued, "token-less GET gets a fresh cookie")
	assert.NoError(t, protector.ValidateToken(issued.Value))

	// A client that already holds the cookie is not re-issued.
	r := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	r.AddCookie(issued)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Empty(t, rec.Result().Cookies())
}

func TestGateRejectsMissingCSRF(t *testing.T) {
	// csrf_token_invalid is always logged, even with both filter
	// flags off.
	auditLog := audit.New(audit.Config{})
	g := New(Config{Audit: auditLog})

	rec := httptest.NewRecorder()
	g.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://example.test/update", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	events := auditLog.Events(audit.Query{Types: []audit.EventType{audit.CSRFTokenInvalid}})
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, audit.RiskHigh, events[0].RiskLevel)
}

func TestGateAcceptsValidCSRF(t *testing.T) {
	protector := csrf.New(csrf.Config{})
	g := New(Config{CSRF: protector})

	token, err := protector.GenerateToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "http://example.test/update", nil)
	r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	r.Header.Set("X-CSRF-Token", token)

	rec := httptest.NewRecorder()
	g.Middleware(okHandler()).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateDistinctClients(t *testing.T) {
	g := New(Config{
		RateLimit: ratelimit.New(ratelimit.Config{MaxRequests: 1, Window: time.Minute}),
	})
	handler := g.Middleware(okHandler())

	a := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	a.Header.Set("X-Forwarded-For", "203.0.113.1")
	b := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	b.Header.Set("X-Forwarded-For", "203.0.113.2")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, a)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, b)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, a)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
