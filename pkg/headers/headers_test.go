package headers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/probe"
)

func newScanner(t *testing.T, handler http.Handler) (*Scanner, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fetch := probe.New(probe.Options{Client: srv.Client()})
	return New(fetch, Config{}), srv.URL
}

func TestScanBareServer(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	var missing []finding.Vulnerability
	for _, v := range vulns {
		if v.Type == finding.MissingSecurityHeaders {
			missing = append(missing, v)
		}
	}
	assert.Len(t, missing, 6, "all baseline headers absent")

	sevs := make(map[string]finding.Severity)
	for _, v := range missing {
		sevs[v.Evidence["header"].(string)] = v.Severity
	}
	assert.Equal(t, finding.High, sevs["Content-Security-Policy"])
	assert.Equal(t, finding.High, sevs["Strict-Transport-Security"])
	assert.Equal(t, finding.Medium, sevs["X-Frame-Options"])
	assert.Equal(t, finding.Medium, sevs["X-Content-Type-Options"])
	assert.Equal(t, finding.Low, sevs["Referrer-Policy"])
	assert.Equal(t, finding.Low, sevs["Permissions-Policy"])
}

func TestScanHardenedServer(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=()")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestScanWeakHeaderValues(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'")
		h.Set("Strict-Transport-Security", "max-age=31536000")
		h.Set("X-Frame-Options", "allow")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=()")
		h.Set("Access-Control-Allow-Origin", "*")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	sevs := make(map[string]finding.Severity)
	for _, v := range vulns {
		if v.Type == finding.InsecureHeaders {
			sevs[v.Evidence["header"].(string)] = v.Severity
		}
	}
	require.Len(t, sevs, 3, "all six baseline headers present, so only value findings expected")
	assert.Equal(t, finding.High, sevs["Content-Security-Policy"])
	assert.Equal(t, finding.Medium, sevs["X-Frame-Options"])
	assert.Equal(t, finding.Medium, sevs["Access-Control-Allow-Origin"])
}

func TestScanStrictValuesClean(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Access-Control-Allow-Origin", "https://app.example.com")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	for _, v := range vulns {
		assert.NotEqual(t, finding.InsecureHeaders, v.Type)
	}
}

func TestScanDisclosureHeaders(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Powered-By", "PHP/5.4.0")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	var found bool
	for _, v := range vulns {
		if v.Type == finding.ExposedSensitiveData {
			found = true
			assert.Equal(t, finding.Low, v.Severity)
			assert.Equal(t, "X-Powered-By", v.Evidence["header"])
		}
	}
	assert.True(t, found)
}

func TestScanWeakHSTS(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=86400")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	var found bool
	for _, v := range vulns {
		if v.Type == finding.WeakSSLConfig {
			found = true
			assert.Equal(t, finding.Medium, v.Severity)
		}
	}
	assert.True(t, found)
}

func TestScanInsecureCookies(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		w.Write([]byte("hello"))
	}))

	vulns, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	var found bool
	for _, v := range vulns {
		if v.Type == finding.InsecureCookies {
			found = true
			assert.Contains(t, v.Evidence["missing"], "Secure")
			assert.Contains(t, v.Evidence["missing"], "HttpOnly")
		}
	}
	assert.True(t, found)
}

func TestScanCookiesOnly(t *testing.T) {
	s, target := newScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "session=abc123; Secure; HttpOnly")
		w.Write([]byte("hello"))
	}))

	vulns, err := s.ScanCookies(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, vulns, 1, "cookie-only scan must not report header findings")
	assert.Equal(t, finding.InsecureCookies, vulns[0].Type)
	assert.Equal(t, "SameSite", vulns[0].Evidence["missing"])
}

func TestScanUnreachable(t *testing.T) {
	s := New(func(ctx context.Context, target string) (*probe.Response, error) {
		return nil, context.DeadlineExceeded
	}, Config{})

	_, err := s.Scan(context.Background(), "http://unreachable.test/")
	assert.Error(t, err)
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"max-age=31536000; includeSubDomains; preload", 31536000},
		{"max-age=0", 0},
		{"includeSubDomains", 0},
		{"max-age=notanumber", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseMaxAge(tt.value), tt.value)
	}
}
