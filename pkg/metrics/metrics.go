// Package metrics exposes Prometheus instrumentation for scans,
// findings, and the admission layer, served from a dedicated registry
// so host applications keep their own default registry clean.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/websentry/websentry/pkg/duration"
)

// Metrics bundles the collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal      *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	FindingsTotal   *prometheus.CounterVec
	RateLimitDenied prometheus.Counter
	CSRFRejected    prometheus.Counter
	AuditEvents     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websentry",
			Name:      "scans_total",
			Help:      "Completed scans by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "websentry",
			Name:      "scan_duration_seconds",
			Help:      "Scan wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websentry",
			Name:      "findings_total",
			Help:      "Findings by severity.",
		}, []string{"severity"}),
		RateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "websentry",
			Name:      "rate_limit_denied_total",
			Help:      "Requests denied by the rate limiter.",
		}),
		CSRFRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "websentry",
			Name:      "csrf_rejected_total",
			Help:      "Requests rejected by CSRF validation.",
		}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websentry",
			Name:      "audit_events_total",
			Help:      "Audit events by risk level.",
		}, []string{"risk"}),
	}

	registry.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.FindingsTotal,
		m.RateLimitDenied,
		m.CSRFRejected,
		m.AuditEvents,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server wraps an HTTP server exposing /metrics.
type Server struct {
	srv *http.Server
}

// NewServer builds a scrape server on addr.
func (m *Metrics) NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			WriteTimeout: duration.MetricsWriteTimeout,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the scrape server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, duration.MetricsShutdown)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// ObserveScan records one completed scan.
func (m *Metrics) ObserveScan(outcome string, elapsed time.Duration) {
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
}
