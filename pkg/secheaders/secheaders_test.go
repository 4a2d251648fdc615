package secheaders

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSPString(t *testing.T) {
	csp := CSP{
		DefaultSrc: []string{"'self'"},
		ScriptSrc:  []string{"'self'", "https://cdn.example.test"},
		ObjectSrc:  []string{"'none'"},
	}
	assert.Equal(t,
		"default-src 'self'; script-src 'self' https://cdn.example.test; object-src 'none'",
		csp.String())
}

func TestCSPStringEmpty(t *testing.T) {
	assert.Equal(t, "", CSP{}.String())
}

func TestHSTSString(t *testing.T) {
	assert.Equal(t, "max-age=31536000; includeSubDomains", DefaultHSTS().String())
	assert.Equal(t,
		"max-age=63072000; includeSubDomains; preload",
		HSTS{MaxAge: 63072000, IncludeSubDomains: true, Preload: true}.String())
	assert.Equal(t, "max-age=300", HSTS{MaxAge: 300}.String())
}

func TestApplyDefaults(t *testing.T) {
	w := New(DefaultConfig())
	h := http.Header{}
	h.Set("X-Powered-By", "Express")
	w.Apply(h)

	assert.NotEmpty(t, h.Get("Content-Security-Policy"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
	assert.Equal(t, "none", h.Get("X-Permitted-Cross-Domain-Policies"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "require-corp", h.Get("Cross-Origin-Embedder-Policy"))
	assert.Equal(t, "same-origin", h.Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "same-origin", h.Get("Cross-Origin-Resource-Policy"))
	assert.Empty(t, h.Get("X-Powered-By"))
}

func TestApplyFrameOptionsUppercased(t *testing.T) {
	w := New(Config{FrameOptions: "sameorigin"})
	h := http.Header{}
	w.Apply(h)
	assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
}

func TestApplyDisables(t *testing.T) {
	w := New(Config{DisableCSP: true, DisableHSTS: true})
	h := http.Header{}
	w.Apply(h)
	assert.Empty(t, h.Get("Content-Security-Policy"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}

func TestApplyCustomHeaders(t *testing.T) {
	w := New(Config{CustomHeaders: map[string]string{"X-Custom": "v"}})
	h := http.Header{}
	w.Apply(h)
	assert.Equal(t, "v", h.Get("X-Custom"))
}

func TestMiddleware(t *testing.T) {
	w := New(DefaultConfig())
	handler := w.Middleware(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
