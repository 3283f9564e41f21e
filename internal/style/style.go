// Package style provides consistent terminal styling for xlaude output.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Success is for positive outcomes.
	Success = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"})

	// Warning is for cautions that did not stop the command.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"})

	// Error is for failures.
	Error = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"})

	// Info is for neutral highlights such as session names.
	Info = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"})

	// Bold is for headers and workspace names.
	Bold = lipgloss.NewStyle().Bold(true)

	// Dim is for secondary details such as paths and timestamps.
	Dim = lipgloss.NewStyle().Faint(true)
)

// Status line prefixes.
var (
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Dim.Render("→")
)

// PrintWarning prints a warning line to stderr.
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, Warning.Render(fmt.Sprintf(format, args...)))
}

// PrintSuccess prints a success line to stdout.
func PrintSuccess(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", SuccessPrefix, fmt.Sprintf(format, args...))
}
