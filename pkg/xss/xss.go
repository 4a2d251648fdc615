// Package xss detects reflected cross-site scripting by injecting
// marker payloads into URL parameters, fragments, and path segments
// and checking whether the target echoes them back unescaped.
package xss

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/probe"
)

// payloads cover script tags, event handlers, URI schemes, filter
// evasion, and template expressions.
var payloads = []string{
	`<script>alert("XSS")</script>`,
	`<img src=x onerror=alert("XSS")>`,
	`<svg onload=alert("XSS")>`,
	`javascript:alert("XSS")`,
	`<iframe src="javascript:alert('XSS')">`,
	`<body onload=alert("XSS")>`,
	`"><script>alert("XSS")</script>`,
	`'><script>alert("XSS")</script>`,
	`<scr<script>ipt>alert("XSS")</scr<script>ipt>`,
	`<input onfocus=alert("XSS") autofocus>`,
	`{{7*7}}`,
	`${7*7}`,
}

// dangerousFragments indicate executable context when only part of a
// payload survives server-side filtering.
var dangerousFragments = []string{
	"<script",
	"onerror=",
	"onload=",
	"onfocus=",
	"javascript:",
}

// queryParams are the parameters payloads get injected into.
var queryParams = []string{"q", "search", "name"}

// Config controls scanner behavior.
type Config struct {
	// Payloads overrides the built-in payload set when non-empty.
	Payloads []string

	// Logger receives per-payload debug output. Nil disables logging.
	Logger *slog.Logger
}

// Scanner probes targets for reflected XSS.
type Scanner struct {
	probe    probe.Func
	payloads []string
	logger   *slog.Logger
}

// New creates a Scanner that issues requests through fetch.
func New(fetch probe.Func, cfg Config) *Scanner {
	p := cfg.Payloads
	if len(p) == 0 {
		p = payloads
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{probe: fetch, payloads: p, logger: logger}
}

// Payloads returns a copy of the active payload set.
func (s *Scanner) Payloads() []string {
	out := make([]string, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// Scan tests the injection points of target payload by payload and
// stops at the first reflection; one finding per vulnerable URL is
// enough. A payload-independent pass then flags dangerous DOM sinks
// in the page itself. Transport errors on individual probes are logged
// and skipped; only context cancellation aborts.
func (s *Scanner) Scan(ctx context.Context, target string) ([]finding.Vulnerability, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	var vulns []finding.Vulnerability

payloadLoop:
	for _, payload := range s.payloads {
		select {
		case <-ctx.Done():
			return vulns, ctx.Err()
		default:
		}

		for _, testURL := range injectionURLs(base, payload) {
			resp, err := s.probe(ctx, testURL)
			if err != nil {
				if ctx.Err() != nil {
					return vulns, ctx.Err()
				}
				s.logger.Debug("probe failed", slog.String("url", testURL), slog.String("error", err.Error()))
				continue
			}

			if !isReflected(resp.BodyString(), payload) {
				continue
			}

			vulns = append(vulns, buildFinding(base.String(), testURL, payload))
			break payloadLoop
		}
	}

	sinkVulns, err := s.scanDOMSinks(ctx, base.String())
	if err != nil {
		return vulns, err
	}
	vulns = append(vulns, sinkVulns...)

	return vulns, nil
}

// domSinkPatterns match JavaScript calls that route attacker-reachable
// data into the DOM or the interpreter.
var domSinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)document\.write\([^)]*\)`),
	regexp.MustCompile(`(?i)innerHTML\s*=\s*[^;]+`),
	regexp.MustCompile(`(?i)location\s*=\s*[^;]+`),
	regexp.MustCompile(`(?i)eval\([^)]*\)`),
	regexp.MustCompile(`(?i)setTimeout\([^)]*,\s*[^)]*\)`),
	regexp.MustCompile(`(?i)setInterval\([^)]*,\s*[^)]*\)`),
}

// scanDOMSinks fetches the page once and reports a single finding
// listing every dangerous sink call in the body.
func (s *Scanner) scanDOMSinks(ctx context.Context, target string) ([]finding.Vulnerability, error) {
	resp, err := s.probe(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("probe failed", slog.String("url", target), slog.String("error", err.Error()))
		return nil, nil
	}

	body := resp.BodyString()
	var matches []string
	for _, re := range domSinkPatterns {
		matches = append(matches, re.FindAllString(body, -1)...)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.XSS,
		Severity:    finding.Medium,
		Title:       "DOM-Based XSS Indicators",
		Description: "The page passes data to dangerous DOM sinks such as document.write, innerHTML, or eval.",
		Location: finding.Location{
			URL:       target,
			Component: "client-side script",
		},
		Impact:         "Attacker-controlled data reaching these sinks executes in victims' browsers without any server round trip.",
		Recommendation: "Replace dangerous sinks with safe DOM APIs and sanitize any data flowing into them.",
		References: []string{
			"https://owasp.org/www-community/attacks/DOM_Based_XSS",
		},
		DiscoveredAt: time.Now(),
		Status:       finding.StatusNew,
		Evidence: map[string]any{
			"matches": matches,
		},
	}}, nil
}

// injectionURLs returns the candidate URLs for one payload: the three
// common reflected parameters, the fragment, and the last path segment.
func injectionURLs(base *url.URL, payload string) []string {
	var urls []string

	for _, param := range queryParams {
		u := *base
		q := u.Query()
		q.Set(param, payload)
		u.RawQuery = q.Encode()
		urls = append(urls, u.String())
	}

	frag := *base
	frag.Fragment = payload
	urls = append(urls, frag.String())

	if base.Path != "" && base.Path != "/" {
		p := *base
		segs := strings.Split(strings.TrimSuffix(p.Path, "/"), "/")
		segs[len(segs)-1] = payload
		p.Path = strings.Join(segs, "/")
		p.RawPath = ""
		urls = append(urls, p.String())
	}

	return urls
}

// isReflected decides whether body shows the payload in an executable
// context. An exact echo is vulnerable. An HTML-escaped echo is the
// server doing its job. A partially filtered echo still counts when a
// dangerous fragment survived alongside the payload's leading marker.
func isReflected(body, payload string) bool {
	if strings.Contains(body, payload) {
		return true
	}
	if strings.Contains(body, html.EscapeString(payload)) {
		return false
	}

	marker := payload
	if len(marker) > 10 {
		marker = marker[:10]
	}
	if !strings.Contains(body, marker) {
		return false
	}
	lower := strings.ToLower(body)
	for _, frag := range dangerousFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// severityFor classifies a reflected payload. Script-context execution
// is critical, event handlers and template expressions are high, and
// everything else lands at medium.
func severityFor(payload string) finding.Severity {
	lower := strings.ToLower(payload)
	if strings.Contains(lower, "<script") {
		return finding.Critical
	}
	if strings.Contains(lower, "onerror") ||
		strings.Contains(lower, "onload") ||
		strings.Contains(lower, "onfocus") ||
		strings.Contains(lower, "{{") ||
		strings.Contains(lower, "${") {
		return finding.High
	}
	return finding.Medium
}

func buildFinding(target, testURL, payload string) finding.Vulnerability {
	evidence := payload
	if len(evidence) > defaults.MaxEvidenceBytes {
		evidence = evidence[:defaults.MaxEvidenceBytes]
	}
	return finding.Vulnerability{
		ID:          finding.NewID(),
		Type:        finding.XSS,
		Severity:    severityFor(payload),
		Title:       "Reflected Cross-Site Scripting",
		Description: fmt.Sprintf("The application reflects user input without proper encoding, allowing payload %q to reach the response unescaped.", payload),
		Location: finding.Location{
			URL:       target,
			Component: "query parameter",
		},
		Impact:         "Attackers can execute arbitrary JavaScript in victims' browsers, steal sessions, and deface content.",
		Recommendation: "Encode all user input on output. Apply context-aware escaping and a restrictive Content-Security-Policy.",
		References: []string{
			"https://owasp.org/www-community/attacks/xss/",
			"https://cheatsheetseries.owasp.org/cheatsheets/Cross_Site_Scripting_Prevention_Cheat_Sheet.html",
		},
		DiscoveredAt: time.Now(),
		Status:       finding.StatusNew,
		Evidence: map[string]any{
			"payload":  evidence,
			"test_url": testURL,
		},
	}
}
