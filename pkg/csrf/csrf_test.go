package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenFormat(t *testing.T) {
	p := New(Config{})

	token, err := p.GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 64, "32 random bytes hex encoded")

	other, err := p.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestRoundTrip(t *testing.T) {
	p := New(Config{})

	rec := httptest.NewRecorder()
	token, err := p.IssueCookie(rec)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)

	r := httptest.NewRequest(http.MethodPost, "http://example.test/update", nil)
	r.AddCookie(cookies[0])
	r.Header.Set("X-CSRF-Token", token)

	assert.NoError(t, p.ValidateRequest(r))
}

func TestAlternateHeaderName(t *testing.T) {
	p := New(Config{})
	token, err := p.GenerateToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "http://example.test/update", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.Header.Set("csrf-token", token)

	assert.NoError(t, p.ValidateRequest(r))
}

func TestMissingToken(t *testing.T) {
	p := New(Config{})
	token, err := p.GenerateToken()
	require.NoError(t, err)

	noCookie := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
	noCookie.Header.Set("X-CSRF-Token", token)
	assert.ErrorIs(t, p.ValidateRequest(noCookie), ErrMissingToken)

	noHeader := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
	noHeader.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	assert.ErrorIs(t, p.ValidateRequest(noHeader), ErrMissingToken)
}

func TestTokenMismatch(t *testing.T) {
	p := New(Config{})
	token, err := p.GenerateToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.Header.Set("X-CSRF-Token", "0000000000000000000000000000000000000000000000000000000000000000")

	assert.ErrorIs(t, p.ValidateRequest(r), ErrTokenMismatch)
}

func TestUnknownToken(t *testing.T) {
	p := New(Config{})

	forged := "1111111111111111111111111111111111111111111111111111111111111111"
	r := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	r.Header.Set("X-CSRF-Token", forged)

	assert.ErrorIs(t, p.ValidateRequest(r), ErrTokenExpired)
}

func TestTokenExpiry(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	p := New(Config{TTL: time.Hour, Now: func() time.Time { return clock }})

	token, err := p.GenerateToken()
	require.NoError(t, err)
	assert.NoError(t, p.ValidateToken(token))

	clock = base.Add(61 * time.Minute)
	assert.ErrorIs(t, p.ValidateToken(token), ErrTokenExpired)
}

func TestSweep(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	p := New(Config{TTL: time.Hour, Now: func() time.Time { return clock }})

	_, err := p.GenerateToken()
	require.NoError(t, err)
	clock = base.Add(30 * time.Minute)
	_, err = p.GenerateToken()
	require.NoError(t, err)

	clock = base.Add(70 * time.Minute)
	assert.Equal(t, 1, p.Sweep())
	assert.Equal(t, 1, p.Len())
}

func TestOriginValidation(t *testing.T) {
	p := New(Config{AllowedOrigins: []string{"https://app.example.test"}})
	token, err := p.GenerateToken()
	require.NoError(t, err)

	build := func(origin, referer string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		r.Header.Set("X-CSRF-Token", token)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if referer != "" {
			r.Header.Set("Referer", referer)
		}
		return r
	}

	assert.NoError(t, p.ValidateRequest(build("https://app.example.test", "")))
	assert.ErrorIs(t, p.ValidateRequest(build("https://evil.test", "")), ErrBadOrigin)
	assert.NoError(t, p.ValidateRequest(build("", "https://app.example.test/form")))
	assert.ErrorIs(t, p.ValidateRequest(build("", "https://evil.test/form")), ErrBadOrigin)
	assert.NoError(t, p.ValidateRequest(build("", "")))
}

func TestMiddleware(t *testing.T) {
	p := New(Config{})
	token, err := p.GenerateToken()
	require.NoError(t, err)

	handler := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Safe methods bypass validation.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// State-changing request without tokens is rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://example.test/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Valid double submit passes.
	r := httptest.NewRequest(http.MethodPost, "http://example.test/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.Header.Set("X-CSRF-Token", token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}
