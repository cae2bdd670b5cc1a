// Package report renders run results for the terminal. Styling is
// color-only so output degrades to plain text when not attached to a
// TTY, which also keeps it diffable in CI logs.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stackgraft/stackgraft/pkg/engine"
	"github.com/stackgraft/stackgraft/pkg/engine/security"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

func severityStyle(s security.Severity) lipgloss.Style {
	switch s {
	case security.SeverityHigh:
		return failStyle
	case security.SeverityMedium:
		return warnStyle
	default:
		return dimStyle
	}
}

// Render produces the full run report.
func Render(res engine.IntegrationResult) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("VALIDATION"))
	b.WriteString("\n")
	b.WriteString(renderValidation(res))
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("INTEGRATION"))
	b.WriteString("\n")
	b.WriteString(renderUpdate(res.Update))

	if res.Update != nil && len(res.Update.Security) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("SECURITY FINDINGS"))
		b.WriteString("\n")
		b.WriteString(SecurityFindings(res.Update.Security))
	}

	b.WriteString("\n")
	if res.OverallSuccess {
		b.WriteString(passStyle.Render("RESULT: SUCCESS"))
	} else {
		b.WriteString(failStyle.Render("RESULT: FAILURE"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderValidation(res engine.IntegrationResult) string {
	v := res.Validation
	if v == nil {
		return dimStyle.Render("  skipped") + "\n"
	}
	var b strings.Builder
	if v.Success {
		fmt.Fprintf(&b, "  %s role %s\n", passStyle.Render("ok"), v.RoleName)
		for _, p := range v.AttachedPolicies {
			fmt.Fprintf(&b, "    attached %s\n", p)
		}
		if !v.CleanupSuccessful {
			fmt.Fprintf(&b, "  %s ephemeral role may still exist\n", failStyle.Render("cleanup failed:"))
		}
	} else {
		fmt.Fprintf(&b, "  %s\n", failStyle.Render("failed"))
	}
	for _, e := range v.Errors {
		fmt.Fprintf(&b, "    %s\n", e)
	}
	return b.String()
}

func renderUpdate(u *engine.UpdateResult) string {
	if u == nil {
		return dimStyle.Render("  skipped") + "\n"
	}
	var b strings.Builder
	if u.CallerRole != "" {
		fmt.Fprintf(&b, "  caller role   %s\n", u.CallerRole)
	}
	if u.RuntimeRole != "" {
		fmt.Fprintf(&b, "  runtime role  %s\n", u.RuntimeRole)
	}
	if u.PolicyExtended != "" {
		fmt.Fprintf(&b, "  extended policy %s\n", u.PolicyExtended)
	}
	switch {
	case u.Success && u.DryRun:
		fmt.Fprintf(&b, "  %s no file written\n", warnStyle.Render("dry run:"))
	case u.Success:
		fmt.Fprintf(&b, "  wrote %s\n", u.OutputPath)
		if u.BackupPath != "" {
			fmt.Fprintf(&b, "  backup %s\n", u.BackupPath)
		}
	default:
		fmt.Fprintf(&b, "  %s\n", failStyle.Render("failed"))
	}
	for _, e := range u.Errors {
		fmt.Fprintf(&b, "    %s\n", e)
	}
	return b.String()
}

// SecurityFindings lists every finding grouped per role, worst first
// within the role's own order.
func SecurityFindings(results []security.Result) string {
	var b strings.Builder
	for _, res := range results {
		counts := res.CountBySeverity()
		verdict := passStyle.Render("pass")
		if !res.Passed() {
			verdict = failStyle.Render("FAIL")
		}
		fmt.Fprintf(&b, "  %s %s (%d high, %d medium, %d low)\n",
			verdict, res.RoleName,
			counts[security.SeverityHigh], counts[security.SeverityMedium], counts[security.SeverityLow])
		for _, issue := range res.Issues {
			fmt.Fprintf(&b, "    [%s] %s: %s\n",
				severityStyle(issue.Severity).Render(string(issue.Severity)), issue.Category, issue.Message)
			if issue.Remediation != "" {
				fmt.Fprintf(&b, "      %s\n", dimStyle.Render(issue.Remediation))
			}
		}
	}
	return b.String()
}

// Checklist renders doctor output. An empty issue list is a clean bill.
func Checklist(issues []string) string {
	if len(issues) == 0 {
		return passStyle.Render("All prerequisites satisfied.") + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", failStyle.Render(fmt.Sprintf("%d problems found:", len(issues))))
	for _, issue := range issues {
		fmt.Fprintf(&b, "  - %s\n", issue)
	}
	return b.String()
}
