package scanner

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/probe"
)

// checkScheme flags targets served over plain HTTP.
func checkScheme(target string) ([]finding.Vulnerability, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if strings.EqualFold(u.Scheme, "https") {
		return nil, nil
	}

	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.WeakSSLConfig,
		Severity:    finding.Medium,
		Title:       "Unencrypted Transport",
		Description: "The target is served over plain HTTP instead of HTTPS.",
		Location: finding.Location{
			URL:       target,
			Component: "transport",
		},
		Impact:         "Traffic can be read and modified in transit, including credentials and session tokens.",
		Recommendation: "Serve all traffic over HTTPS and redirect HTTP requests to the secure origin.",
		DiscoveredAt:   time.Now(),
		Status:         finding.StatusNew,
	}}, nil
}

// dependencyManifests are filenames whose exposure suggests the
// deployment ships its dependency metadata.
var dependencyManifests = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"composer.json":     true,
	"composer.lock":     true,
	"gemfile.lock":      true,
	"requirements.txt":  true,
	"pom.xml":           true,
	"go.sum":            true,
}

// checkDependencyPath flags URLs whose path names a dependency
// manifest. Advisory only; the manifest is not fetched or parsed.
func checkDependencyPath(target string) ([]finding.Vulnerability, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	name := strings.ToLower(path.Base(u.Path))
	if !dependencyManifests[name] {
		return nil, nil
	}

	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.OutdatedDependencies,
		Severity:    finding.Medium,
		Title:       "Dependency Manifest Exposed",
		Description: fmt.Sprintf("The URL path points at the dependency manifest %q.", name),
		Location: finding.Location{
			URL:       target,
			Component: "path",
		},
		Impact:         "Exposed manifests let attackers enumerate dependency versions and match them against known vulnerabilities.",
		Recommendation: "Block direct access to dependency manifests and audit the listed versions for known issues.",
		DiscoveredAt:   time.Now(),
		Status:         finding.StatusNew,
		Evidence: map[string]any{
			"filename": name,
		},
	}}, nil
}

// csrfBodyPattern matches token-shaped fields in page bodies and
// csrfHeaderPattern matches anti-forgery header names.
var (
	csrfBodyPattern   = regexp.MustCompile(`(?i)csrf|xsrf|_token`)
	csrfHeaderPattern = regexp.MustCompile(`(?i)csrf|xsrf`)
)

// checkCSRF fetches the page and flags responses that carry no
// recognizable anti-forgery token in either the body or the headers.
func (s *Scanner) checkCSRF(ctx context.Context, target string, fetch probe.Func) ([]finding.Vulnerability, error) {
	resp, err := fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch target: %w", err)
	}

	if csrfBodyPattern.MatchString(resp.BodyString()) {
		return nil, nil
	}
	for name := range resp.Headers {
		if csrfHeaderPattern.MatchString(name) {
			return nil, nil
		}
	}

	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.CSRF,
		Severity:    finding.High,
		Title:       "Missing CSRF Protection",
		Description: "No anti-forgery token was found in the response body or headers.",
		Location: finding.Location{
			URL:       target,
			Component: "response",
		},
		Impact:         "Attackers can forge state-changing requests on behalf of authenticated users.",
		Recommendation: "Issue per-session CSRF tokens and validate them on every state-changing request.",
		References: []string{
			"https://owasp.org/www-community/attacks/csrf",
		},
		DiscoveredAt: time.Now(),
		Status:       finding.StatusNew,
	}}, nil
}

// checkRateLimiting sends a paced burst of requests and flags the
// endpoint when nearly all of them succeed without any throttling
// response.
func (s *Scanner) checkRateLimiting(ctx context.Context, target string, fetch probe.Func) ([]finding.Vulnerability, error) {
	limiter := rate.NewLimiter(rate.Limit(defaults.ProbePacePerSecond), defaults.ProbePacePerSecond)

	succeeded := 0
	throttled := 0
	attempted := 0

	for i := 0; i < s.probeRequests; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		attempted++
		resp, err := fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		switch {
		case resp.StatusCode == 429:
			throttled++
		case resp.StatusCode < 400:
			succeeded++
		}
	}

	if attempted == 0 {
		return nil, nil
	}
	ratio := float64(succeeded) / float64(attempted)
	if throttled > 0 || ratio <= s.successRatio {
		return nil, nil
	}

	return []finding.Vulnerability{{
		ID:          finding.NewID(),
		Type:        finding.RateLimitingMissing,
		Severity:    finding.Medium,
		Title:       "Missing Rate Limiting",
		Description: fmt.Sprintf("%d of %d rapid requests succeeded with no throttling response.", succeeded, attempted),
		Location: finding.Location{
			URL:       target,
			Component: "endpoint",
		},
		Impact:         "The endpoint is open to brute force, scraping, and resource exhaustion.",
		Recommendation: "Apply per-client rate limits and return 429 with Retry-After when exceeded.",
		DiscoveredAt:   time.Now(),
		Status:         finding.StatusNew,
		Evidence: map[string]any{
			"requests":      attempted,
			"succeeded":     succeeded,
			"success_ratio": ratio,
		},
	}}, nil
}

// sensitivePatterns match credentials and key material leaking into
// response bodies.
var sensitivePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"aws access key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"private key block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
	{"api key assignment", regexp.MustCompile(`(?i)api[_-]?key["']?\s*[:=]\s*["'][A-Za-z0-9_\-]{16,}["']`)},
	{"password assignment", regexp.MustCompile(`(?i)password["']?\s*[:=]\s*["'][^"']{4,}["']`)},
	{"connection string", regexp.MustCompile(`(?i)(?:mongodb|postgres|mysql|redis)://[^\s"'<>]+:[^\s"'<>]+@`)},
}

// sensitivePathPattern matches URL paths that name secret material.
var sensitivePathPattern = regexp.MustCompile(`(?i)api[_-]?key|password|secret|token|credential|auth`)

// checkSensitiveData flags URL paths that name secret material and
// scans the response body for leaked secrets.
func (s *Scanner) checkSensitiveData(ctx context.Context, target string, fetch probe.Func) ([]finding.Vulnerability, error) {
	var vulns []finding.Vulnerability

	if u, err := url.Parse(target); err == nil {
		if match := sensitivePathPattern.FindString(u.Path); match != "" {
			vulns = append(vulns, finding.Vulnerability{
				ID:          finding.NewID(),
				Type:        finding.SensitiveDataExposure,
				Severity:    finding.High,
				Title:       "Sensitive Path Exposed",
				Description: fmt.Sprintf("The URL path contains the sensitive term %q.", match),
				Location: finding.Location{
					URL:       target,
					Component: "path",
				},
				Impact:         "Paths that name secret material often serve credentials or key files directly.",
				Recommendation: "Keep secrets out of web-reachable paths and restrict access to credential endpoints.",
				DiscoveredAt:   time.Now(),
				Status:         finding.StatusNew,
				Evidence: map[string]any{
					"match": match,
				},
			})
		}
	}

	resp, err := fetch(ctx, target)
	if err != nil {
		return vulns, fmt.Errorf("fetch target: %w", err)
	}

	body := resp.BodyString()
	for _, p := range sensitivePatterns {
		match := p.re.FindString(body)
		if match == "" {
			continue
		}
		if len(match) > defaults.MaxEvidenceBytes {
			match = match[:defaults.MaxEvidenceBytes]
		}
		vulns = append(vulns, finding.Vulnerability{
			ID:          finding.NewID(),
			Type:        finding.SensitiveDataExposure,
			Severity:    finding.High,
			Title:       "Sensitive Data In Response",
			Description: fmt.Sprintf("The response body contains what looks like a %s.", p.name),
			Location: finding.Location{
				URL:       target,
				Component: "response body",
			},
			Impact:         "Leaked credentials grant attackers direct access to backing services.",
			Recommendation: "Remove secrets from client-visible output and rotate the exposed credentials.",
			DiscoveredAt:   time.Now(),
			Status:         finding.StatusNew,
			Evidence: map[string]any{
				"pattern": p.name,
				"match":   match,
			},
		})
	}
	return vulns, nil
}
