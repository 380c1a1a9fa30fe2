package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Outcome colors
	UpToDate  = color.New(color.Faint)
	NoChanges = color.New(color.FgCyan)
	Published = color.New(color.FgGreen, color.Bold)
	Failed    = color.New(color.FgRed, color.Bold)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Package = color.New(color.FgBlue, color.Bold)
	OldVer  = color.New(color.FgRed)
	NewVer  = color.New(color.FgGreen)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// OutcomeColor returns the color used for a pipeline outcome label.
func OutcomeColor(outcome string) *color.Color {
	switch outcome {
	case "up-to-date":
		return UpToDate
	case "no-changes":
		return NoChanges
	case "published":
		return Published
	case "failed":
		return Failed
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatOutcome formats an outcome label with its color
func FormatOutcome(outcome string) string {
	return OutcomeColor(outcome).Sprintf("[%s]", outcome)
}

// FormatPackage formats a package name with color
func FormatPackage(kind, name string) string {
	if kind != "" && kind != "package" {
		return Package.Sprintf("%s/%s", kind, name)
	}
	return Package.Sprint(name)
}

// FormatVersionChange renders "old -> new" with the old version in red and
// the new one in green.
func FormatVersionChange(oldVersion, newVersion string) string {
	return OldVer.Sprint(oldVersion) + " -> " + NewVer.Sprint(newVersion)
}

// Captured writes command output verbatim under a dim header, skipping empty
// streams.
func Captured(w io.Writer, label, text string) {
	if text == "" {
		return
	}
	Dim.Fprintf(w, "--- %s ---\n", label)
	fmt.Fprint(w, text)
	if text[len(text)-1] != '\n' {
		fmt.Fprintln(w)
	}
}

// Box writes a boxed message to w
func Box(w io.Writer, title, content string) {
	fmt.Fprintln(w)
	Header.Fprintln(w, "┌─ "+title+" ─")
	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│  "+content)
	fmt.Fprintln(w, "│")
	Header.Fprintln(w, "└────────────────")
	fmt.Fprintln(w)
}
