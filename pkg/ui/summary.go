package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/runner"
)

// Summary is what the scan command prints when a run ends.
type Summary struct {
	Input  string
	ScanID string
	Stats  runner.Stats
	Err    error
}

const (
	boxWidth = 50
	labelW   = 18
)

// PrintSummary writes the run summary box and a verdict line.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprint(w, RenderSummary(s))
}

// RenderSummary returns the text PrintSummary writes.
func RenderSummary(s Summary) string {
	var b strings.Builder
	st := s.Stats

	fmt.Fprintln(&b)
	PrintSection(&b, "Scan Summary")
	fmt.Fprintf(&b, "  %s %s\n", ConfigLabelStyle.Render("Input:"), URLStyle.Render(s.Input))
	fmt.Fprintf(&b, "  %s %s\n", ConfigLabelStyle.Render("Scan ID:"), ConfigValueStyle.Render(s.ScanID))
	fmt.Fprintln(&b)

	border := BracketStyle.Render("  +" + strings.Repeat("-", boxWidth-2) + "+")
	row := func(label, value string, style lipgloss.Style) {
		fmt.Fprintf(&b, "  |  %s%s|\n",
			StatLabelStyle.Render(padRight(label, labelW)),
			style.Render(padRight(value, boxWidth-4-labelW)),
		)
	}

	fmt.Fprintln(&b, border)
	row("Targets:", fmt.Sprintf("%d (from #%d)", st.Total, st.StartIndex), StatValueStyle)
	row("Processed:", fmt.Sprintf("%d (%.1f%%)", st.Processed, st.Progress()), StatValueStyle)
	fmt.Fprintln(&b, border)
	row("Scanned:", fmt.Sprintf("%d", st.Scanned), PassStyle)
	row("Deadline hit:", fmt.Sprintf("%d", st.Deadline), WarnStyle)
	row("Timed out:", fmt.Sprintf("%d", st.Timeouts), WarnStyle)
	row("Failed:", fmt.Sprintf("%d", st.Failed), FailStyle)
	row("Persisted:", fmt.Sprintf("%d", st.Persisted), StatValueStyle)
	row("Archived:", fmt.Sprintf("%d", st.Archived), StatValueStyle)
	fmt.Fprintln(&b, border)
	for _, kind := range finding.Kinds() {
		row(string(kind)+":", fmt.Sprintf("%d", st.Findings[kind]), StatValueStyle)
	}
	fmt.Fprintln(&b, border)
	row("Errors:", fmt.Sprintf("%d (%d alerts)", st.Errors, st.Alerts), StatValueStyle)
	row("Browser starts:", fmt.Sprintf("%d", st.BrowserStarts), StatValueStyle)
	row("Duration:", formatDuration(st.Duration()), StatValueStyle)
	row("Pages/min:", fmt.Sprintf("%.1f", st.PagesPerMinute()), StatValueStyle)
	fmt.Fprintln(&b, border)
	fmt.Fprintln(&b)

	switch {
	case errors.Is(s.Err, runner.ErrBrowserStart):
		PrintError(&b, "Browser could not be started: "+s.Err.Error())
	case errors.Is(s.Err, context.Canceled):
		PrintWarning(&b, fmt.Sprintf("Interrupted after %d pages, resume with -resume", st.Processed))
	case s.Err != nil:
		PrintError(&b, s.Err.Error())
	case st.Processed > 0 && st.Errors > st.Processed/10:
		PrintWarning(&b, "High error rate, check the browser log and the database")
	default:
		PrintSuccess(&b, fmt.Sprintf("Worklist exhausted: %d findings on %d pages", st.TotalFindings(), st.Processed))
	}
	return b.String()
}

// formatDuration formats a duration human-readably.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// padRight pads s to width visible columns.
func padRight(s string, width int) string {
	padding := width - lipgloss.Width(s)
	if padding <= 0 {
		return s
	}
	return s + strings.Repeat(" ", padding)
}
