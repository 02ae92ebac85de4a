package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	// StyleError for error messages.
	StyleError = lipgloss.NewStyle().Foreground(colorRed)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	iconError   = "✗"
	iconWarning = "!"
)

// printWarning writes a styled warning line to w.
func printWarning(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, StyleWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
}

// printError writes a styled error line to w.
func printError(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, StyleError.Render(iconError)+" "+msg)
}

// lockBanner brackets a serialized lock document with dim banner lines so it
// stands out from surrounding pip output on stderr.
func lockBanner(w io.Writer, content []byte) {
	fmt.Fprintln(w, StyleDim.Render("----- generated Pipfile.lock -----"))
	w.Write(content)
	fmt.Fprintln(w, StyleDim.Render("----- end of Pipfile.lock -----"))
}
