// Package csrf implements double-submit cookie CSRF protection with
// server-side token expiry and origin checking. Token comparison is
// constant time.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/websentry/websentry/pkg/duration"
)

// CookieName is the double-submit cookie.
const CookieName = "_csrf"

// headerNames are accepted in order. Header lookup is already
// case-insensitive for the canonical form; csrf-token is a separate
// header some clients send.
var headerNames = []string{"X-CSRF-Token", "Csrf-Token"}

const tokenBytes = 32

var (
	// ErrMissingToken means the cookie or header was absent.
	ErrMissingToken = errors.New("csrf token missing")

	// ErrTokenMismatch means cookie and header disagree.
	ErrTokenMismatch = errors.New("csrf token mismatch")

	// ErrTokenExpired means the token is unknown or past its TTL.
	ErrTokenExpired = errors.New("csrf token expired")

	// ErrBadOrigin means the request origin is not allowed.
	ErrBadOrigin = errors.New("origin not allowed")
)

// Config controls protector behavior.
type Config struct {
	// TTL is how long issued tokens stay valid.
	TTL time.Duration

	// Secure marks issued cookies Secure. Enable everywhere TLS
	// terminates before the app.
	Secure bool

	// AllowedOrigins restricts Origin/Referer on state-changing
	// requests when non-empty.
	AllowedOrigins []string

	// Logger receives validation failures. Nil disables logging.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Protector issues and validates CSRF tokens. Safe for concurrent use.
type Protector struct {
	mu     sync.Mutex
	tokens map[string]time.Time

	ttl     time.Duration
	secure  bool
	origins map[string]bool
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Protector. Zero-value config fields get defaults.
func New(cfg Config) *Protector {
	if cfg.TTL == 0 {
		cfg.TTL = duration.CSRFTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	return &Protector{
		tokens:  make(map[string]time.Time),
		ttl:     cfg.TTL,
		secure:  cfg.Secure,
		origins: origins,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// GenerateToken creates a fresh token and registers it with its expiry.
func (p *Protector) GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	p.mu.Lock()
	p.tokens[token] = p.now().Add(p.ttl)
	p.mu.Unlock()
	return token, nil
}

// IssueCookie generates a token, sets the double-submit cookie on w,
// and returns the token for embedding in the page or API response.
func (p *Protector) IssueCookie(w http.ResponseWriter) (string, error) {
	token, err := p.GenerateToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.ttl.Seconds()),
		Secure:   p.secure,
		HttpOnly: false, // the client script must read it to echo the header
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// ValidateToken checks a bare token against the store.
func (p *Protector) ValidateToken(token string) error {
	if token == "" {
		return ErrMissingToken
	}

	p.mu.Lock()
	expiry, ok := p.tokens[token]
	if ok && p.now().After(expiry) {
		delete(p.tokens, token)
		ok = false
	}
	p.mu.Unlock()

	if !ok {
		return ErrTokenExpired
	}
	return nil
}

// ValidateRequest performs the double-submit check: the cookie and
// header tokens must both be present, equal in constant time, known,
// and unexpired. Origin is checked first when configured.
func (p *Protector) ValidateRequest(r *http.Request) error {
	if err := p.validateOrigin(r); err != nil {
		return err
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return ErrMissingToken
	}
	header := headerToken(r)
	if header == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		p.logger.Warn("csrf token mismatch", slog.String("path", r.URL.Path))
		return ErrTokenMismatch
	}
	return p.ValidateToken(cookie.Value)
}

// headerToken returns the first present CSRF header value.
func headerToken(r *http.Request) string {
	for _, name := range headerNames {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// validateOrigin enforces AllowedOrigins against Origin, falling back
// to the Referer origin. Requests carrying neither pass; the token
// check still protects them.
func (p *Protector) validateOrigin(r *http.Request) error {
	if len(p.origins) == 0 {
		return nil
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		ref := r.Header.Get("Referer")
		if ref == "" {
			return nil
		}
		u, err := url.Parse(ref)
		if err != nil {
			return ErrBadOrigin
		}
		origin = u.Scheme + "://" + u.Host
	}
	if !p.origins[origin] {
		p.logger.Warn("origin rejected", slog.String("origin", origin))
		return ErrBadOrigin
	}
	return nil
}

// Sweep removes expired tokens and returns the count.
func (p *Protector) Sweep() int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for token, expiry := range p.tokens {
		if now.After(expiry) {
			delete(p.tokens, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of live tokens.
func (p *Protector) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

// safeMethods need no CSRF validation.
func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Middleware validates state-changing requests and rejects failures
// with 403. Safe methods pass through untouched.
func (p *Protector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if err := p.ValidateRequest(r); err != nil {
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
