package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBoundary(t *testing.T) {
	l := New(Config{MaxRequests: 5, Window: time.Minute})

	for i := 1; i <= 5; i++ {
		d := l.Check("client")
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	d := l.Check("client")
	assert.False(t, d.Allowed, "sixth request must be denied")
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestWindowResets(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	l := New(Config{MaxRequests: 2, Window: time.Minute, Now: func() time.Time { return clock }})

	l.Check("client")
	l.Check("client")
	assert.False(t, l.Check("client").Allowed)

	clock = base.Add(61 * time.Second)
	d := l.Check("client")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: time.Minute})

	assert.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
}

func TestRetryAfterCeiling(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	l := New(Config{MaxRequests: 1, Window: time.Minute, Now: func() time.Time { return clock }})

	l.Check("client")
	clock = base.Add(30500 * time.Millisecond)
	d := l.Check("client")
	require.False(t, d.Allowed)
	// 29.5s remaining rounds up to 30s.
	assert.Equal(t, 30*time.Second, d.RetryAfter)
}

func TestStatusDoesNotCount(t *testing.T) {
	l := New(Config{MaxRequests: 2, Window: time.Minute})

	l.Check("client")
	for i := 0; i < 5; i++ {
		d := l.Status("client")
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Remaining)
	}

	d := l.Status("unknown")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestReset(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: time.Minute})

	l.Check("client")
	assert.False(t, l.Check("client").Allowed)
	l.Reset("client")
	assert.True(t, l.Check("client").Allowed)
}

func TestSweepRemovesExpired(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	l := New(Config{MaxRequests: 5, Window: time.Minute, Now: func() time.Time { return clock }})

	l.Check("old")
	clock = base.Add(2 * time.Minute)
	l.Check("fresh")

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestStartStopLifecycle(t *testing.T) {
	l := New(Config{SweepInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	l.Stop()
	l.Stop()
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request)
		remote string
		want   string
	}{
		{
			"forwarded for first hop",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") },
			"10.0.0.2:1234",
			"203.0.113.7",
		},
		{
			"real ip fallback",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "198.51.100.3") },
			"10.0.0.2:1234",
			"198.51.100.3",
		},
		{
			"remote addr host",
			func(r *http.Request) {},
			"192.0.2.9:5555",
			"192.0.2.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
			r.RemoteAddr = tt.remote
			tt.setup(r)
			assert.Equal(t, tt.want, ClientKey(r))
		})
	}
}

func TestApplyHeaders(t *testing.T) {
	reset := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	h := http.Header{}
	ApplyHeaders(h, Decision{
		Allowed:    false,
		Limit:      100,
		Remaining:  0,
		ResetTime:  reset,
		RetryAfter: 42 * time.Second,
	})

	assert.Equal(t, "100", h.Get("RateLimit-Limit"))
	assert.Equal(t, "0", h.Get("RateLimit-Remaining"))
	assert.Equal(t, reset.Format(time.RFC3339), h.Get("RateLimit-Reset"))
	assert.Equal(t, "100", h.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1785587400", h.Get("X-RateLimit-Reset"))
	assert.Equal(t, "42", h.Get("Retry-After"))
}

func TestApplyHeadersAllowedOmitsRetryAfter(t *testing.T) {
	h := http.Header{}
	ApplyHeaders(h, Decision{Allowed: true, Limit: 10, Remaining: 9, ResetTime: time.Now()})
	assert.Empty(t, h.Get("Retry-After"))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 5, AuthPreset().MaxRequests)
	assert.Equal(t, time.Minute, AuthPreset().Window)
	assert.Equal(t, 60, APIPreset().MaxRequests)
	assert.Equal(t, 100, PublicPreset().MaxRequests)
	assert.Equal(t, 3, ExpensivePreset().MaxRequests)
	assert.Equal(t, 5*time.Minute, ExpensivePreset().Window)
}
