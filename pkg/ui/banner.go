package ui

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/warscan/warscan/pkg/defaults"
)

var (
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetNoColor disables colored output.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerSeparator = "________________________________________________"

// PrintBanner writes the tool name and version.
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, TitleStyle.Render(defaults.ToolName)+" "+StatLabelStyle.Render("v"+defaults.Version))
	fmt.Fprintln(w, DividerStyle.Render(bannerSeparator))
}

// PrintSection writes a section header.
func PrintSection(w io.Writer, title string) {
	fmt.Fprintln(w, SectionStyle.Render("> "+title))
	fmt.Fprintln(w, DividerStyle.Render(strings.Repeat("-", len(bannerSeparator))))
}

// PrintConfig writes settings sorted by key.
func PrintConfig(w io.Writer, config map[string]string) {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %s\n",
			ConfigLabelStyle.Render(k+":"),
			ConfigValueStyle.Render(config[k]),
		)
	}
}

// PrintSuccess writes a success line.
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintln(w, PassStyle.Render("  "+Icon("✔", "[+]")+" "+message))
}

// PrintWarning writes a warning line.
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintln(w, WarnStyle.Render("  "+Icon("⚠", "[!]")+" "+message))
}

// PrintError writes an error line.
func PrintError(w io.Writer, message string) {
	fmt.Fprintln(w, FailStyle.Render("  "+Icon("✘", "[X]")+" "+message))
}
