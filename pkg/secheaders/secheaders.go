// Package secheaders builds and applies hardened HTTP response
// headers: CSP, HSTS, frame and MIME protections, and the
// cross-origin isolation set.
package secheaders

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/websentry/websentry/pkg/defaults"
)

// CSP holds Content-Security-Policy directives. Each field is the
// source list for one directive; empty fields are omitted.
type CSP struct {
	DefaultSrc []string
	ScriptSrc  []string
	StyleSrc   []string
	ImgSrc     []string
	FontSrc    []string
	ConnectSrc []string
	FrameSrc   []string
	ObjectSrc  []string
	BaseURI    []string
	FormAction []string
}

// DefaultCSP locks everything to self and blocks plugins.
func DefaultCSP() CSP {
	return CSP{
		DefaultSrc: []string{"'self'"},
		ScriptSrc:  []string{"'self'"},
		StyleSrc:   []string{"'self'", "'unsafe-inline'"},
		ImgSrc:     []string{"'self'", "data:"},
		FontSrc:    []string{"'self'"},
		ConnectSrc: []string{"'self'"},
		FrameSrc:   []string{"'none'"},
		ObjectSrc:  []string{"'none'"},
		BaseURI:    []string{"'self'"},
		FormAction: []string{"'self'"},
	}
}

// String renders the policy with directives joined by "; ".
func (c CSP) String() string {
	var parts []string
	add := func(name string, sources []string) {
		if len(sources) > 0 {
			parts = append(parts, name+" "+strings.Join(sources, " "))
		}
	}
	add("default-src", c.DefaultSrc)
	add("script-src", c.ScriptSrc)
	add("style-src", c.StyleSrc)
	add("img-src", c.ImgSrc)
	add("font-src", c.FontSrc)
	add("connect-src", c.ConnectSrc)
	add("frame-src", c.FrameSrc)
	add("object-src", c.ObjectSrc)
	add("base-uri", c.BaseURI)
	add("form-action", c.FormAction)
	return strings.Join(parts, "; ")
}

// HSTS holds Strict-Transport-Security parameters.
type HSTS struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// DefaultHSTS returns a one-year policy covering subdomains.
func DefaultHSTS() HSTS {
	return HSTS{
		MaxAge:            defaults.HSTSMinMaxAge,
		IncludeSubDomains: true,
	}
}

// String renders the header value.
func (h HSTS) String() string {
	s := fmt.Sprintf("max-age=%d", h.MaxAge)
	if h.IncludeSubDomains {
		s += "; includeSubDomains"
	}
	if h.Preload {
		s += "; preload"
	}
	return s
}

// Config selects which headers Apply writes and their values.
type Config struct {
	CSP            CSP
	HSTS           HSTS
	FrameOptions   string // DENY or SAMEORIGIN
	ReferrerPolicy string
	PermissionsPol string
	DisableHSTS    bool // for plain HTTP deployments
	DisableCSP     bool
	CrossOriginIso bool // write the COEP/COOP/CORP trio
	XSSProtection  bool // legacy header for older browsers
	HidePoweredBy  bool
	CustomHeaders  map[string]string
}

// DefaultConfig returns the full hardened set.
func DefaultConfig() Config {
	return Config{
		CSP:            DefaultCSP(),
		HSTS:           DefaultHSTS(),
		FrameOptions:   "DENY",
		ReferrerPolicy: "strict-origin-when-cross-origin",
		PermissionsPol: "geolocation=(), microphone=(), camera=()",
		CrossOriginIso: true,
		XSSProtection:  true,
		HidePoweredBy:  true,
	}
}

// Writer applies a fixed header configuration to responses.
type Writer struct {
	cfg Config
}

// New creates a Writer.
func New(cfg Config) *Writer {
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = "DENY"
	}
	return &Writer{cfg: cfg}
}

// Apply writes the configured security headers to h.
func (w *Writer) Apply(h http.Header) {
	cfg := w.cfg

	if !cfg.DisableCSP {
		h.Set("Content-Security-Policy", cfg.CSP.String())
	}
	if !cfg.DisableHSTS {
		h.Set("Strict-Transport-Security", cfg.HSTS.String())
	}
	h.Set("X-Frame-Options", strings.ToUpper(cfg.FrameOptions))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Permitted-Cross-Domain-Policies", "none")
	if cfg.XSSProtection {
		h.Set("X-XSS-Protection", "1; mode=block")
	}
	if cfg.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
	}
	if cfg.PermissionsPol != "" {
		h.Set("Permissions-Policy", cfg.PermissionsPol)
	}
	if cfg.CrossOriginIso {
		h.Set("Cross-Origin-Embedder-Policy", "require-corp")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
	}
	if cfg.HidePoweredBy {
		h.Del("X-Powered-By")
		h.Del("Server")
	}
	for name, value := range cfg.CustomHeaders {
		h.Set(name, value)
	}
}

// Middleware applies the headers before the wrapped handler runs.
func (w *Writer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.Apply(rw.Header())
		next.ServeHTTP(rw, r)
	})
}
