// Package render turns an incident report into markdown and styled
// terminal output.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/moolen/triage/internal/models"
)

// Color palette
var (
	colorPrimary = lipgloss.Color("#00D4FF") // Cyan
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Yellow/Orange
	colorError   = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#6B7280") // Gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

func severityStyle(severity string) lipgloss.Style {
	switch {
	case strings.HasPrefix(severity, "CRITICAL"):
		return lipgloss.NewStyle().Bold(true).Foreground(colorError)
	case strings.HasPrefix(severity, "ERROR"):
		return lipgloss.NewStyle().Foreground(colorError)
	case strings.HasPrefix(severity, "WARNING"):
		return lipgloss.NewStyle().Foreground(colorWarning)
	default:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	}
}

// Markdown renders the report as a markdown document.
func Markdown(rep *models.IncidentReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Incident Report %s\n\n", rep.ID)
	fmt.Fprintf(&b, "- **Severity**: %s\n", rep.Severity)
	if rep.IssueType != "" {
		fmt.Fprintf(&b, "- **Issue type**: %s\n", rep.IssueType)
	}
	fmt.Fprintf(&b, "- **Confidence**: %.0f%%\n", rep.Confidence*100)
	if len(rep.DetectedSystems) > 0 {
		names := make([]string, 0, len(rep.DetectedSystems))
		for _, s := range rep.DetectedSystems {
			names = append(names, s.CanonicalName)
		}
		fmt.Fprintf(&b, "- **Detected systems**: %s\n", strings.Join(names, ", "))
	}
	if len(rep.DegradedRoles) > 0 {
		roles := make([]string, 0, len(rep.DegradedRoles))
		for _, r := range rep.DegradedRoles {
			roles = append(roles, string(r))
		}
		fmt.Fprintf(&b, "- **Degraded agents**: %s\n", strings.Join(roles, ", "))
	}

	if rep.RootCause != "" {
		fmt.Fprintf(&b, "\n## Root Cause\n\n%s\n", rep.RootCause)
	}
	if rep.ImpactSummary != "" {
		fmt.Fprintf(&b, "\n## Impact\n\n%s\n", rep.ImpactSummary)
	}
	if len(rep.RecommendedActions) > 0 {
		b.WriteString("\n## Recommended Actions\n\n")
		for i, action := range rep.RecommendedActions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, action)
		}
	}

	if len(rep.MatchedIncidents) > 0 || rep.MatchedRunbook != nil || rep.Contact != nil {
		b.WriteString("\n## Evidence\n\n")
		for _, ref := range rep.MatchedIncidents {
			fmt.Fprintf(&b, "- Incident %s (score %.2f)\n", refLabel(ref), ref.Score)
		}
		if rep.MatchedRunbook != nil {
			fmt.Fprintf(&b, "- Runbook %s (score %.2f)\n", refLabel(*rep.MatchedRunbook), rep.MatchedRunbook.Score)
		}
		if rep.Contact != nil {
			fmt.Fprintf(&b, "- Contact %s\n", refLabel(*rep.Contact))
		}
	}

	if len(rep.Timeline) > 0 {
		b.WriteString("\n## Timeline\n\n")
		for _, ev := range rep.Timeline {
			fmt.Fprintf(&b, "- `%s` %s\n", ev.Timestamp.Format("15:04:05"), ev.Message)
		}
	}

	return b.String()
}

func refLabel(ref models.FragmentRef) string {
	if ref.Title != "" {
		return fmt.Sprintf("%q [%s]", ref.Title, ref.FragmentID)
	}
	return "[" + ref.FragmentID + "]"
}

// Terminal renders the report for an interactive terminal: a styled
// severity banner followed by the glamour-rendered markdown body. Falls
// back to plain markdown when the renderer cannot be constructed.
func Terminal(rep *models.IncidentReport, width int) string {
	if width <= 0 {
		width = 80
	}

	banner := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("triage"),
		mutedStyle.Render(" · "),
		severityStyle(rep.Severity).Render(rep.Severity),
	)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return banner + "\n\n" + Markdown(rep)
	}
	body, err := renderer.Render(Markdown(rep))
	if err != nil {
		return banner + "\n\n" + Markdown(rep)
	}
	return banner + "\n" + body
}
