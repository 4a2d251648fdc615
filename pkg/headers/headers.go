// Package headers audits HTTP response headers for missing security
// controls, information disclosure, weak transport policies, and
// insecure cookie attributes.
package headers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/probe"
)

// requiredHeader describes one security header the target should send.
type requiredHeader struct {
	Name     string
	Severity finding.Severity
	Purpose  string
}

// requiredHeaders is the baseline set every response should carry.
var requiredHeaders = []requiredHeader{
	{"Content-Security-Policy", finding.High, "restricts the sources scripts and other resources may load from"},
	{"Strict-Transport-Security", finding.High, "forces browsers to use HTTPS for future requests"},
	{"X-Frame-Options", finding.Medium, "prevents the page from being framed for clickjacking"},
	{"X-Content-Type-Options", finding.Medium, "stops MIME type sniffing"},
	{"Referrer-Policy", finding.Low, "limits referrer information sent to other origins"},
	{"Permissions-Policy", finding.Low, "restricts access to browser features"},
}

// disclosureHeaders leak implementation details to attackers.
var disclosureHeaders = []string{
	"Server",
	"X-Powered-By",
	"X-AspNet-Version",
	"X-AspNetMvc-Version",
}

// Config controls scanner behavior.
type Config struct {
	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// Scanner audits a target's response headers.
type Scanner struct {
	probe  probe.Func
	logger *slog.Logger
}

// New creates a Scanner that issues requests through fetch.
func New(fetch probe.Func, cfg Config) *Scanner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{probe: fetch, logger: logger}
}

// Scan fetches target once and audits the response headers.
func (s *Scanner) Scan(ctx context.Context, target string) ([]finding.Vulnerability, error) {
	resp, err := s.probe(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch target: %w", err)
	}

	var vulns []finding.Vulnerability
	vulns = append(vulns, checkMissing(target, resp.Headers)...)
	vulns = append(vulns, checkValues(target, resp.Headers)...)
	vulns = append(vulns, checkDisclosure(target, resp.Headers)...)
	vulns = append(vulns, checkHSTS(target, resp.Headers)...)
	vulns = append(vulns, checkCookies(target, resp.Headers)...)
	return vulns, nil
}

// ScanCookies fetches target once and audits only the Set-Cookie
// attributes.
func (s *Scanner) ScanCookies(ctx context.Context, target string) ([]finding.Vulnerability, error) {
	resp, err := s.probe(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch target: %w", err)
	}
	return checkCookies(target, resp.Headers), nil
}

// checkMissing reports each absent baseline header.
func checkMissing(target string, h http.Header) []finding.Vulnerability {
	var vulns []finding.Vulnerability
	for _, req := range requiredHeaders {
		if h.Get(req.Name) != "" {
			continue
		}
		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.MissingSecurityHeaders,
			Severity:    req.Severity,
			Title:       "Missing Security Header: " + req.Name,
			Description: fmt.Sprintf("The response does not include %s, which %s.", req.Name, req.Purpose),
			Location: finding.Location{
				URL:       target,
				Component: "response headers",
			},
			Impact:         "Browsers fall back to permissive defaults, widening the attack surface.",
			Recommendation: fmt.Sprintf("Set %s on all responses.", req.Name),
			References: []string{
				"https://owasp.org/www-project-secure-headers/",
			},
			DiscoveredAt: time.Now(),
			Status:       finding.StatusNew,
			Evidence: map[string]any{
				"header": req.Name,
			},
		})
	}
	return vulns
}

// checkValues flags weak values on security headers that are present:
// a CSP that permits inline or eval'd scripts, X-Frame-Options set to
// ALLOW, and a wildcard CORS origin.
func checkValues(target string, h http.Header) []finding.Vulnerability {
	var vulns []finding.Vulnerability

	if csp := h.Get("Content-Security-Policy"); csp != "" {
		lower := strings.ToLower(csp)
		if strings.Contains(lower, "unsafe-inline") || strings.Contains(lower, "unsafe-eval") {
			vulns = append(vulns, finding.Vulnerability{
				ID:          finding.NewID(),
				Type:        finding.InsecureHeaders,
				Severity:    finding.High,
				Title:       "Weak Content Security Policy",
				Description: "The Content-Security-Policy permits unsafe-inline or unsafe-eval, allowing inline script execution.",
				Location: finding.Location{
					URL:       target,
					Component: "response headers",
				},
				Impact:         "Inline scripts can still execute, defeating the policy's XSS protection.",
				Recommendation: "Remove unsafe-inline and unsafe-eval. Use nonces or hashes for inline scripts.",
				DiscoveredAt:   time.Now(),
				Status:         finding.StatusNew,
				Evidence: map[string]any{
					"header": "Content-Security-Policy",
					"value":  csp,
				},
			})
		}
	}

	if xfo := h.Get("X-Frame-Options"); strings.EqualFold(xfo, "ALLOW") {
		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.InsecureHeaders,
			Severity:    finding.Medium,
			Title:       "Weak X-Frame-Options Configuration",
			Description: "X-Frame-Options is set to ALLOW, permitting the page to be framed.",
			Location: finding.Location{
				URL:       target,
				Component: "response headers",
			},
			Impact:         "The site can be embedded in iframes, enabling clickjacking attacks.",
			Recommendation: "Set X-Frame-Options to DENY or SAMEORIGIN.",
			References: []string{
				"https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/X-Frame-Options",
			},
			DiscoveredAt: time.Now(),
			Status:       finding.StatusNew,
			Evidence: map[string]any{
				"header": "X-Frame-Options",
				"value":  xfo,
			},
		})
	}

	if cors := h.Get("Access-Control-Allow-Origin"); cors == "*" {
		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.InsecureHeaders,
			Severity:    finding.Medium,
			Title:       "Overly Permissive CORS Policy",
			Description: "Access-Control-Allow-Origin is set to the wildcard *.",
			Location: finding.Location{
				URL:       target,
				Component: "response headers",
			},
			Impact:         "Any website can make requests to the API, potentially leaking sensitive data.",
			Recommendation: "Restrict Access-Control-Allow-Origin to trusted origins.",
			DiscoveredAt:   time.Now(),
			Status:         finding.StatusNew,
			Evidence: map[string]any{
				"header": "Access-Control-Allow-Origin",
				"value":  cors,
			},
		})
	}

	return vulns
}

// checkDisclosure reports version and technology disclosure headers.
func checkDisclosure(target string, h http.Header) []finding.Vulnerability {
	var vulns []finding.Vulnerability
	for _, name := range disclosureHeaders {
		value := h.Get(name)
		if value == "" {
			continue
		}
		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.ExposedSensitiveData,
			Severity:    finding.Low,
			Title:       "Information Disclosure: " + name,
			Description: fmt.Sprintf("The %s header reveals implementation details (%q).", name, value),
			Location: finding.Location{
				URL:       target,
				Component: "response headers",
			},
			Impact:         "Attackers can fingerprint the stack and target known vulnerabilities.",
			Recommendation: fmt.Sprintf("Remove or genericize the %s header.", name),
			DiscoveredAt:   time.Now(),
			Status:         finding.StatusNew,
			Evidence: map[string]any{
				"header": name,
				"value":  value,
			},
		})
	}
	return vulns
}

// checkHSTS flags a present but weak Strict-Transport-Security policy.
func checkHSTS(target string, h http.Header) []finding.Vulnerability {
	value := h.Get("Strict-Transport-Security")
	if value == "" {
		return nil
	}
	maxAge := parseMaxAge(value)
	if maxAge >= defaults.HSTSMinMaxAge {
		return nil
	}
	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.WeakSSLConfig,
		Severity:    finding.Medium,
		Title:       "Weak HSTS Policy",
		Description: fmt.Sprintf("Strict-Transport-Security max-age is %d, below the recommended one year.", maxAge),
		Location: finding.Location{
			URL:       target,
			Component: "response headers",
		},
		Impact:         "Short HSTS lifetimes leave windows for protocol downgrade attacks.",
		Recommendation: "Set max-age to at least 31536000 and include includeSubDomains.",
		DiscoveredAt:   time.Now(),
		Status:         finding.StatusNew,
		Evidence: map[string]any{
			"header": "Strict-Transport-Security",
			"value":  value,
		},
	}}
}

// checkCookies flags Set-Cookie values missing Secure, HttpOnly, or
// SameSite.
func checkCookies(target string, h http.Header) []finding.Vulnerability {
	var vulns []finding.Vulnerability
	for _, cookie := range h.Values("Set-Cookie") {
		lower := strings.ToLower(cookie)

		var missing []string
		if !strings.Contains(lower, "secure") {
			missing = append(missing, "Secure")
		}
		if !strings.Contains(lower, "httponly") {
			missing = append(missing, "HttpOnly")
		}
		if !strings.Contains(lower, "samesite") {
			missing = append(missing, "SameSite")
		}
		if len(missing) == 0 {
			continue
		}

		evidence := cookie
		if len(evidence) > defaults.MaxCookieEvidence {
			evidence = evidence[:defaults.MaxCookieEvidence]
		}

		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.InsecureCookies,
			Severity:    finding.Medium,
			Title:       "Insecure Cookie Attributes",
			Description: fmt.Sprintf("A cookie is set without the %s attribute(s).", strings.Join(missing, " and ")),
			Location: finding.Location{
				URL:       target,
				Component: "response headers",
			},
			Impact:         "Cookies may be sent over plaintext, read by injected scripts, or attached to cross-site requests.",
			Recommendation: "Set Secure, HttpOnly, and SameSite on all session cookies.",
			DiscoveredAt:   time.Now(),
			Status:         finding.StatusNew,
			Evidence: map[string]any{
				"cookie":  evidence,
				"missing": strings.Join(missing, ","),
			},
		})
	}
	return vulns
}

// parseMaxAge extracts the max-age directive from an HSTS value.
// Returns 0 when absent or malformed.
func parseMaxAge(value string) int {
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(strings.ToLower(part))
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}
