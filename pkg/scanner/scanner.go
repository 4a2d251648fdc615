// Package scanner orchestrates vulnerability scans: it dispatches the
// per-type checks over the configured targets, aggregates findings
// into a scan result, records audit events, and archives past runs.
// Only one scan runs at a time.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/websentry/websentry/pkg/audit"
	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/duration"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/headers"
	"github.com/websentry/websentry/pkg/httpclient"
	"github.com/websentry/websentry/pkg/metrics"
	"github.com/websentry/websentry/pkg/probe"
	"github.com/websentry/websentry/pkg/sqli"
	"github.com/websentry/websentry/pkg/xss"
)

var (
	// ErrScanInProgress is returned when Run is called while another
	// scan holds the scanner.
	ErrScanInProgress = errors.New("scanner is already running")

	// ErrNoTargets is returned when the config names nothing to scan.
	ErrNoTargets = errors.New("no targets configured")
)

// defaultScanTypes is the full built-in check set.
var defaultScanTypes = []finding.VulnType{
	finding.XSS,
	finding.SQLInjection,
	finding.MissingSecurityHeaders,
	finding.WeakSSLConfig,
	finding.OutdatedDependencies,
	finding.CSRF,
	finding.RateLimitingMissing,
	finding.SensitiveDataExposure,
}

// quickScanTypes is the fast subset used by QuickScan.
var quickScanTypes = []finding.VulnType{
	finding.XSS,
	finding.SQLInjection,
	finding.MissingSecurityHeaders,
	finding.WeakSSLConfig,
}

// Config wires the scanner's dependencies.
type Config struct {
	// Client is the shared HTTP client. Nil gets a pooled default.
	Client *http.Client

	// Probe overrides request issuing entirely, for tests.
	Probe probe.Func

	// Audit receives scan lifecycle and finding events. Optional.
	Audit *audit.Logger

	// Metrics receives scan instrumentation. Optional.
	Metrics *metrics.Metrics

	// Logger receives operational output. Nil disables logging.
	Logger *slog.Logger

	// XSS and SQLi tune the respective checks.
	XSS  xss.Config
	SQLi sqli.Config

	// ProbeRequests is the request count for the rate limit probe.
	ProbeRequests int

	// SuccessRatio above which an unthrottled endpoint is flagged.
	SuccessRatio float64

	// MaxResults caps the archive of past scan results.
	MaxResults int
}

// Scanner runs security scans. Safe for concurrent use; concurrent
// Run calls beyond the first fail with ErrScanInProgress.
type Scanner struct {
	mu      sync.Mutex
	running bool

	resultsMu sync.RWMutex
	results   []finding.ScanResult

	client        *http.Client
	probeOverride probe.Func
	auditLog      *audit.Logger
	metrics       *metrics.Metrics
	logger        *slog.Logger
	xssCfg        xss.Config
	sqliCfg       sqli.Config
	probeRequests int
	successRatio  float64
	maxResults    int
}

// New creates a Scanner. Zero-value config fields get defaults.
func New(cfg Config) *Scanner {
	if cfg.Client == nil && cfg.Probe == nil {
		cfg.Client = httpclient.New(httpclient.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ProbeRequests == 0 {
		cfg.ProbeRequests = defaults.ProbeRequests
	}
	if cfg.SuccessRatio == 0 {
		cfg.SuccessRatio = defaults.ProbeSuccessRatio
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 100
	}
	return &Scanner{
		client:        cfg.Client,
		probeOverride: cfg.Probe,
		auditLog:      cfg.Audit,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		xssCfg:        cfg.XSS,
		sqliCfg:       cfg.SQLi,
		probeRequests: cfg.ProbeRequests,
		successRatio:  cfg.SuccessRatio,
		maxResults:    cfg.MaxResults,
	}
}

// IsRunning reports whether a scan is in flight.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes a full scan per cfg. A second concurrent call fails
// with ErrScanInProgress.
func (s *Scanner) Run(ctx context.Context, cfg finding.ScanConfig) (*finding.ScanResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if len(cfg.Targets.URLs) == 0 {
		return nil, ErrNoTargets
	}
	types := cfg.ScanTypes
	if len(types) == 0 {
		types = defaultScanTypes
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = duration.HTTPLongOps
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetch := s.probeOverride
	if fetch == nil {
		fetch = probe.FromScanConfig(cfg, s.client)
	}

	result := &finding.ScanResult{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
		Config:    cfg,
	}

	s.audit(audit.Event{
		Type:     audit.ScanStarted,
		Resource: "scanner",
		Action:   "run",
		Details:  map[string]any{"scan_id": result.ID, "targets": len(cfg.Targets.URLs)},
		Tags:     []string{"security", "scan"},
	})
	s.logger.Info("scan started",
		slog.String("scan_id", result.ID),
		slog.Int("targets", len(cfg.Targets.URLs)),
		slog.Int("types", len(types)))

	var vulns []finding.Vulnerability
	checksFailed := 0
	checksRun := 0

	for _, target := range cfg.Targets.URLs {
		for _, scanType := range types {
			select {
			case <-ctx.Done():
				return s.finish(result, vulns, types, checksRun, checksFailed, ctx.Err())
			default:
			}

			checksRun++
			found, err := s.dispatch(ctx, scanType, target, fetch)
			vulns = append(vulns, found...)
			if err != nil {
				if ctx.Err() != nil {
					return s.finish(result, vulns, types, checksRun, checksFailed, ctx.Err())
				}
				checksFailed++
				s.logger.Warn("check failed",
					slog.String("type", string(scanType)),
					slog.String("target", target),
					slog.String("error", err.Error()))
			}
		}
	}

	res, err := s.finish(result, vulns, types, checksRun, checksFailed, nil)
	return res, err
}

// QuickScan runs the fast check subset against a single URL.
func (s *Scanner) QuickScan(ctx context.Context, target string) (*finding.ScanResult, error) {
	return s.Run(ctx, finding.ScanConfig{
		Targets:   finding.Targets{URLs: []string{target}},
		ScanTypes: quickScanTypes,
		Timeout:   duration.HTTPScanning,
	})
}

// dispatch routes one scan type to its check implementation.
func (s *Scanner) dispatch(ctx context.Context, t finding.VulnType, target string, fetch probe.Func) ([]finding.Vulnerability, error) {
	switch t {
	case finding.XSS:
		return xss.New(fetch, s.xssCfg).Scan(ctx, target)
	case finding.SQLInjection:
		return sqli.New(fetch, s.sqliCfg).Scan(ctx, target)
	case finding.MissingSecurityHeaders, finding.InsecureHeaders:
		return headers.New(fetch, headers.Config{Logger: s.logger}).Scan(ctx, target)
	case finding.InsecureCookies:
		return headers.New(fetch, headers.Config{Logger: s.logger}).ScanCookies(ctx, target)
	case finding.WeakSSLConfig:
		return checkScheme(target)
	case finding.OutdatedDependencies:
		return checkDependencyPath(target)
	case finding.CSRF:
		return s.checkCSRF(ctx, target, fetch)
	case finding.RateLimitingMissing:
		return s.checkRateLimiting(ctx, target, fetch)
	case finding.SensitiveDataExposure:
		return s.checkSensitiveData(ctx, target, fetch)
	default:
		s.logger.Debug("scan type has no check", slog.String("type", string(t)))
		return nil, nil
	}
}

// finish seals the result, records it, and emits audit and metric
// events. A non-nil cause marks the scan as aborted: the partial
// result is discarded and only the error reaches the caller.
func (s *Scanner) finish(result *finding.ScanResult, vulns []finding.Vulnerability, types []finding.VulnType, run, failed int, cause error) (*finding.ScanResult, error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Vulnerabilities = vulns
	result.Summary = finding.Summarize(vulns, defaults.TopVulnerabilityTypes)
	result.Coverage = finding.ScanCoverage{
		URLsTested: len(result.Config.Targets.URLs),
		TestCases:  len(types) * defaults.TestCasesPerScanType,
	}
	if run > 0 {
		result.Coverage.SuccessRate = float64(run-failed) / float64(run) * 100
	}

	outcome := "completed"
	auditOutcome := audit.OutcomeSuccess
	if cause != nil {
		outcome = "aborted"
		auditOutcome = audit.OutcomeFailure
		s.audit(audit.Event{
			Type:     audit.ErrorOccurred,
			Resource: "scanner",
			Outcome:  audit.OutcomeFailure,
			Details:  map[string]any{"scan_id": result.ID, "error": cause.Error()},
			Tags:     []string{"security", "scan", "error"},
		})
	}

	for _, v := range vulns {
		s.audit(audit.Event{
			Type:     audit.VulnerabilityDetected,
			Resource: v.Location.URL,
			Details:  map[string]any{"finding_id": v.ID, "type": string(v.Type), "severity": string(v.Severity)},
			Tags:     []string{"security", "scan"},
		})
		if s.metrics != nil {
			s.metrics.FindingsTotal.WithLabelValues(string(v.Severity)).Inc()
		}
	}
	s.audit(audit.Event{
		Type:     audit.ScanCompleted,
		Resource: "scanner",
		Outcome:  auditOutcome,
		Details:  map[string]any{"scan_id": result.ID, "findings": len(vulns), "duration_ms": result.Duration.Milliseconds()},
		Tags:     []string{"security", "scan"},
	})
	if s.metrics != nil {
		s.metrics.ObserveScan(outcome, result.Duration)
	}
	s.logger.Info("scan finished",
		slog.String("scan_id", result.ID),
		slog.String("outcome", outcome),
		slog.Int("findings", len(vulns)),
		slog.Duration("elapsed", result.Duration))

	if cause != nil {
		return nil, cause
	}

	s.resultsMu.Lock()
	s.results = append(s.results, *result)
	if over := len(s.results) - s.maxResults; over > 0 {
		s.results = s.results[over:]
	}
	s.resultsMu.Unlock()

	return result, nil
}

func (s *Scanner) audit(e audit.Event) {
	if s.auditLog == nil {
		return
	}
	stored, ok := s.auditLog.Log(e)
	if ok && s.metrics != nil {
		s.metrics.AuditEvents.WithLabelValues(string(stored.RiskLevel)).Inc()
	}
}

// Results returns the archived scan results, oldest first.
func (s *Scanner) Results() []finding.ScanResult {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	out := make([]finding.ScanResult, len(s.results))
	copy(out, s.results)
	return out
}

// Result returns one archived scan by ID.
func (s *Scanner) Result(id string) (*finding.ScanResult, bool) {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	for i := range s.results {
		if s.results[i].ID == id {
			r := s.results[i]
			return &r, true
		}
	}
	return nil, false
}
