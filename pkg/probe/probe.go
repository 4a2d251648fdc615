// Package probe issues the HTTP requests that scanners interpret.
// Scanners take a probe.Func so tests can substitute fakes and the
// orchestrator can share one pooled client across all checks.
package probe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/finding"
	"github.com/websentry/websentry/pkg/httpclient"
	"github.com/websentry/websentry/pkg/iohelper"
)

// Response is the subset of an HTTP exchange that scanners inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// BodyString returns the response body as a string.
func (r *Response) BodyString() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Func fetches a single target URL and returns the observed response.
// Implementations must honor ctx cancellation.
type Func func(ctx context.Context, target string) (*Response, error)

// Options control how the default prober builds requests.
type Options struct {
	Method    string
	Body      string
	UserAgent string
	Headers   map[string]string
	Client    *http.Client
}

// New returns a Func backed by a real HTTP client. A nil client in
// opts gets a pooled default from httpclient.
func New(opts Options) Func {
	client := opts.Client
	if client == nil {
		client = httpclient.New(httpclient.DefaultConfig())
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaults.UAMinimal
	}

	return func(ctx context.Context, target string) (*Response, error) {
		var bodyReader *strings.Reader
		if opts.Body != "" {
			bodyReader = strings.NewReader(opts.Body)
		} else {
			bodyReader = strings.NewReader("")
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ua)
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			return nil, err
		}
		defer iohelper.DrainAndClose(resp.Body)

		body, err := iohelper.ReadBodyDefault(resp.Body)
		if err != nil {
			return nil, err
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header.Clone(),
			Body:       body,
			Duration:   elapsed,
		}, nil
	}
}

// FromScanConfig builds a Func honoring the per-scan request settings.
func FromScanConfig(cfg finding.ScanConfig, client *http.Client) Func {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaults.UAMinimal
	}
	if client == nil {
		hc := httpclient.DefaultConfig()
		if cfg.Timeout > 0 {
			hc.Timeout = cfg.Timeout
		}
		hc.FollowRedirects = cfg.FollowRedirects
		client = httpclient.New(hc)
	}
	return New(Options{
		Method:    cfg.Method,
		Body:      cfg.Body,
		UserAgent: ua,
		Headers:   cfg.CustomHeaders,
		Client:    client,
	})
}
