package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/hubspoke/internal/spoke"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	if d := m.Deployment; d != nil {
		renderProgressBar(&b, m)
		renderSteps(&b, m)
		renderResources(&b, d)
		if len(d.RollbackErrors) > 0 {
			renderRollbackErrors(&b, d)
		}
	}
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("hubspoke: spoke %d", m.SpokeID)
	if m.Deployment != nil {
		title += fmt.Sprintf(" (%s)", m.Deployment.ClientName)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Deployment == nil:
		status += dimStyle.Render("Loading...")
	case m.Deployment.Status.Active():
		s := m.Deployment.Status
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + statusStyle(s).Render(string(s))
	default:
		s := m.Deployment.Status
		status += statusStyle(s).Render(string(s))
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := m.Deployment.Progress() / 100
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	fmt.Fprintf(b, "  %s %d%%%s\n", bar, int(progress*100), eta)
}

func renderSteps(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Steps"))
	b.WriteString("\n")

	d := m.Deployment
	for _, step := range d.Steps {
		icon, style := stepIcon(step.Status, m.SpinnerFrame)
		dur := ""
		switch {
		case step.StartedAt != nil && step.CompletedAt != nil:
			dur = formatDuration(step.CompletedAt.Sub(*step.StartedAt))
		case step.StartedAt != nil && step.Status == spoke.StepStatusInProgress:
			dur = formatDuration(m.clock().Sub(*step.StartedAt))
		}
		fmt.Fprintf(b, "    %s %-20s %s\n", style(icon), style(string(step.Name)), dimStyle.Render(dur))
		if step.ErrorMessage != "" {
			fmt.Fprintf(b, "         %s\n", failedStyle.Render(step.ErrorMessage))
		}
	}
}

func renderResources(b *strings.Builder, d *spoke.Deployment) {
	b.WriteString(sectionStyle.Render("  Resources"))
	b.WriteString("\n")

	items := []struct {
		name  string
		value string
	}{
		{"VNet", d.VNetName},
		{"Address space", d.Config.AddressPrefix},
		{"NIC", d.NICName},
		{"VM", d.VMName},
		{"Private IP", d.VMPrivateIP},
		{"Peerings", strings.Join(d.PeeringIDs, ", ")},
		{"Backend pool", d.BackendPoolName},
		{"Routing rule", d.RoutingRuleName},
	}
	for _, item := range items {
		icon, style := checkMark, sf(readyStyle)
		value := item.value
		if value == "" {
			icon, style = pending, sf(dimStyle)
			value = "-"
		}
		fmt.Fprintf(b, "    %s %-16s %s\n", style(icon), style(item.name), value)
	}
}

func renderRollbackErrors(b *strings.Builder, d *spoke.Deployment) {
	b.WriteString(sectionStyle.Render("  Rollback Errors"))
	b.WriteString("\n")

	for _, msg := range d.RollbackErrors {
		fmt.Fprintf(b, "    %s %s\n", failedStyle.Render(crossMark), dimStyle.Render(msg))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	parts := []string{fmt.Sprintf("elapsed: %s", formatDuration(m.clock().Sub(m.StartTime)))}
	if d := m.Deployment; d != nil {
		if d.RollbackAttempts > 0 {
			parts = append(parts, fmt.Sprintf("rollback attempts: %d", d.RollbackAttempts))
		}
		if d.FailedStep != "" {
			parts = append(parts, fmt.Sprintf("failed at: %s", d.FailedStep))
		}
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  %s  |  q: quit", strings.Join(parts, "  |  "))))
	b.WriteString("\n")
}

func stepIcon(status spoke.StepStatus, frame int) (string, styleFunc) {
	switch status {
	case spoke.StepStatusCompleted:
		return checkMark, sf(readyStyle)
	case spoke.StepStatusFailed:
		return crossMark, sf(failedStyle)
	case spoke.StepStatusInProgress:
		return currentSpinner(frame), sf(activeStyle)
	default:
		return pending, sf(dimStyle)
	}
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
