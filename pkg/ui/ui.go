// Package ui renders terminal output for scan results using adaptive
// colors that work on both light and dark backgrounds.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/websentry/websentry/pkg/defaults"
	"github.com/websentry/websentry/pkg/finding"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"})

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})

	criticalStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"})

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"})

	mediumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FACC15"})

	lowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"})

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"})

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// SeverityStyle returns the style for a severity level.
func SeverityStyle(s finding.Severity) lipgloss.Style {
	switch s {
	case finding.Critical:
		return criticalStyle
	case finding.High:
		return highStyle
	case finding.Medium:
		return mediumStyle
	case finding.Low:
		return lowStyle
	default:
		return infoStyle
	}
}

// Banner returns the startup banner.
func Banner() string {
	return titleStyle.Render("websentry "+defaults.Version) + "\n" +
		subtleStyle.Render("web security scanner and audit toolkit")
}

// RenderSummary renders a scan result summary block.
func RenderSummary(r *finding.ScanResult) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Scan " + r.ID))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%d targets, %d findings in %s",
		r.Coverage.URLsTested, r.Summary.Total, r.Duration.Round(10*time.Millisecond))))
	b.WriteString("\n\n")

	line := func(label string, count int, style lipgloss.Style) {
		if count == 0 {
			return
		}
		b.WriteString(style.Render(fmt.Sprintf("  %-8s %d", label, count)))
		b.WriteString("\n")
	}
	line("critical", r.Summary.Critical, criticalStyle)
	line("high", r.Summary.High, highStyle)
	line("medium", r.Summary.Medium, mediumStyle)
	line("low", r.Summary.Low, lowStyle)
	line("info", r.Summary.Info, infoStyle)

	if r.Summary.Total == 0 {
		b.WriteString(lowStyle.Render("  no findings"))
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}

// RenderFinding renders one vulnerability for terminal output.
func RenderFinding(v finding.Vulnerability) string {
	var b strings.Builder
	b.WriteString(SeverityStyle(v.Severity).Render(strings.ToUpper(v.Severity.String())))
	b.WriteString(" ")
	b.WriteString(v.Title)
	if v.Location.URL != "" {
		b.WriteString("\n")
		b.WriteString(subtleStyle.Render("  " + v.Location.URL))
	}
	return b.String()
}
