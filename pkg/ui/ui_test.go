package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/websentry/websentry/pkg/finding"
)

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(), "websentry")
}

func TestRenderSummary(t *testing.T) {
	r := &finding.ScanResult{
		ID:       "scan-1",
		Duration: 2 * time.Second,
		Summary:  finding.ScanSummary{Total: 2, Critical: 1, Medium: 1},
		Coverage: finding.ScanCoverage{URLsTested: 1},
	}
	out := RenderSummary(r)
	assert.Contains(t, out, "scan-1")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "medium")
	assert.NotContains(t, out, "no findings")
}

func TestRenderSummaryClean(t *testing.T) {
	out := RenderSummary(&finding.ScanResult{ID: "scan-2"})
	assert.Contains(t, out, "no findings")
}

func TestRenderFinding(t *testing.T) {
	out := RenderFinding(finding.Vulnerability{
		Severity: finding.High,
		Title:    "Reflected Cross-Site Scripting",
		Location: finding.Location{URL: "http://example.test/?q=x"},
	})
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, "Reflected Cross-Site Scripting")
	assert.Contains(t, out, "http://example.test/?q=x")
}
