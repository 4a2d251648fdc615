// Command websentry runs security scans and serves the protected
// demo endpoint.
//
// Usage:
//
//	websentry scan -url https://target.example [-url ...] [-types xss,sql_injection] [-json]
//	websentry quickscan -url https://target.example [-json]
//	websentry serve -addr :8080 [-metrics :9090]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/websentry/websentry/pkg/admission"
	"github.com/websentry/websentry/pkg/audit"
	"github.com/websentry/websentry/pkg/config"
	"github.com/websentry/websentry/pkg/csrf"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/jsonutil"
	"github.com/websentry/websentry/pkg/metrics"
	"github.com/websentry/websentry/pkg/ratelimit"
	"github.com/websentry/websentry/pkg/scanner"
	"github.com/websentry/websentry/pkg/ui"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:], false)
	case "quickscan":
		err = runScan(os.Args[2:], true)
	case "serve":
		err = runServe(os.Args[2:])
	case "version":
		fmt.Println(ui.Banner())
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: websentry <scan|quickscan|serve|version> [flags]")
}

// multiFlag collects repeated -url flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runScan(args []string, quick bool) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	var urls multiFlag
	fs.Var(&urls, "url", "target URL (repeatable)")
	typesFlag := fs.String("types", "", "comma-separated scan types (default: all)")
	jsonOut := fs.Bool("json", false, "emit the result as JSON")
	configPath := fs.String("config", "", "path to config file")
	timeout := fs.Duration("timeout", 0, "overall scan timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("at least one -url is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	auditLog := audit.New(audit.Config{
		MaxEvents:             cfg.Audit.MaxEvents,
		Retention:             time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour,
		LogFailedAttempts:     cfg.Audit.LogFailedAttempts,
		LogSuccessfulRequests: true,
		Logger:                logger,
	})
	s := scanner.New(scanner.Config{
		Audit:         auditLog,
		Logger:        logger,
		ProbeRequests: cfg.Scanner.ProbeRequests,
		SuccessRatio:  cfg.Scanner.SuccessRatio,
		MaxResults:    cfg.Scanner.MaxResults,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *finding.ScanResult
	if quick {
		result, err = s.QuickScan(ctx, urls[0])
	} else {
		scanCfg := finding.ScanConfig{
			Targets:   finding.Targets{URLs: urls},
			ScanTypes: parseTypes(*typesFlag),
			Timeout:   *timeout,
			UserAgent: cfg.Scanner.UserAgent,
		}
		result, err = s.Run(ctx, scanCfg)
	}
	if err != nil {
		return err
	}

	if *jsonOut {
		out, err := jsonutil.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Println(ui.RenderSummary(result))
		for _, v := range result.Vulnerabilities {
			fmt.Println(ui.RenderFinding(v))
		}
	}

	if n := severeCount(result.Vulnerabilities); n > 0 {
		return fmt.Errorf("%d critical or high severity findings", n)
	}
	return nil
}

func severeCount(vulns []finding.Vulnerability) int {
	n := 0
	for _, v := range vulns {
		if v.Severity == finding.Critical || v.Severity == finding.High {
			n++
		}
	}
	return n
}

func parseTypes(s string) []finding.VulnType {
	if s == "" {
		return nil
	}
	var types []finding.VulnType
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, finding.VulnType(part))
		}
	}
	return types
}

// runServe starts a demo server with the full admission gate in front
// of a status endpoint, plus an optional metrics listener.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address")
	metricsAddr := fs.String("metrics", "", "metrics listen address (empty disables)")
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	fmt.Println(ui.Banner())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditLog := audit.New(audit.Config{
		MaxEvents:             cfg.Audit.MaxEvents,
		Retention:             time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour,
		LogFailedAttempts:     cfg.Audit.LogFailedAttempts,
		LogSuccessfulRequests: cfg.Audit.LogSuccessfulRequests,
		Logger:                logger,
	})
	auditLog.Start(ctx)
	defer auditLog.Stop()

	var m *metrics.Metrics
	if *metricsAddr != "" || cfg.Metrics.Enabled {
		m = metrics.New()
	}

	gate := admission.New(admission.Config{
		RateLimit: ratelimit.New(ratelimit.Config{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window.Std(),
			Logger:      logger,
		}),
		CSRF: csrf.New(csrf.Config{
			TTL:            cfg.CSRF.TokenTTL.Std(),
			Secure:         cfg.CSRF.Secure,
			AllowedOrigins: cfg.CSRF.AllowedOrigins,
			Logger:         logger,
		}),
		Audit:   auditLog,
		Metrics: m,
		Logger:  logger,
	})
	gate.Start(ctx)
	defer gate.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/csrf", func(w http.ResponseWriter, r *http.Request) {
		token, err := gate.Protector().IssueCookie(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = jsonutil.MarshalWrite(w, map[string]string{"token": token})
	})

	srv := &http.Server{Addr: *addr, Handler: gate.Middleware(mux)}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", slog.String("addr", *addr))
		errCh <- srv.ListenAndServe()
	}()

	if m != nil {
		maddr := *metricsAddr
		if maddr == "" {
			maddr = cfg.Metrics.Addr
		}
		msrv := m.NewServer(maddr)
		go func() {
			logger.Info("metrics listening", slog.String("addr", maddr))
			errCh <- msrv.Start()
		}()
		defer func() { _ = msrv.Shutdown(context.Background()) }()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
