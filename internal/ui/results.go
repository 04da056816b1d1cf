package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
	"github.com/rileyhilliard/gridmon/internal/icinga"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle  = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorMuted)
)

// RenderResults renders check results as a table, one row per result,
// followed by a one-line summary.
func RenderResults(results []evaluate.Result) string {
	if len(results) == 0 {
		return "No results\n"
	}

	hostW, sensorW := len("HOST"), len("SENSOR")
	for _, r := range results {
		hostW = max(hostW, len(r.Hostname))
		sensorW = max(sensorW, len(r.Sensor))
	}
	hostW += 2
	sensorW += 2

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("  STATUS    "+padRight("HOST", hostW)+padRight("SENSOR", sensorW)+"DETAIL") + "\n")

	problems := 0
	for _, r := range results {
		var status string
		if r.Status == evaluate.StatusOK {
			status = successStyle.Render(SymbolOK + " " + r.Status.String())
		} else {
			problems++
			status = errorStyle.Render(SymbolProblem + " " + r.Status.String())
		}

		message, perf, _ := strings.Cut(r.Detail, "|")
		detail := message
		if perf != "" {
			detail += " " + mutedStyle.Render(perf)
		}

		sb.WriteString("  " + padRight(status, 10) + padRight(r.Hostname, hostW) + padRight(r.Sensor, sensorW) + detail + "\n")
	}

	sb.WriteString("\n")
	summary := fmt.Sprintf("%d results, %d problems", len(results), problems)
	if problems > 0 {
		sb.WriteString(errorStyle.Render(summary))
	} else {
		sb.WriteString(successStyle.Render(summary))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderRegistration summarises one host registration pass.
func RenderRegistration(report icinga.EnsureReport) string {
	var sb strings.Builder
	for _, h := range report.Created {
		sb.WriteString("  " + successStyle.Render(SymbolCreated) + " " + h + mutedStyle.Render(" created") + "\n")
	}
	for _, h := range report.Pending {
		sb.WriteString("  " + warnStyle.Render(SymbolPending) + " " + h + mutedStyle.Render(" create pending") + "\n")
	}

	failed := make([]string, 0, len(report.Failed))
	for h := range report.Failed {
		failed = append(failed, h)
	}
	sort.Strings(failed)
	for _, h := range failed {
		sb.WriteString("  " + errorStyle.Render(SymbolProblem) + " " + h + " " +
			mutedStyle.Render(errors.Brief(report.Failed[h])) + "\n")
	}

	sb.WriteString(fmt.Sprintf("%d known, %d created, %d pending, %d failed\n",
		len(report.Known), len(report.Created), len(report.Pending), len(report.Failed)))
	return sb.String()
}

// RenderHosts lists Icinga host names.
func RenderHosts(hosts []string) string {
	if len(hosts) == 0 {
		return "No hosts registered\n"
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("  HOST") + "\n")
	for _, h := range hosts {
		sb.WriteString("  " + successStyle.Render(SymbolOK) + " " + h + "\n")
	}
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d hosts", len(hosts))) + "\n")
	return sb.String()
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	// Account for ANSI codes when calculating visible length
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
