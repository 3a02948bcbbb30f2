package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorOptions describes a user-facing failure
type ErrorOptions struct {
	Context     string
	Problem     string
	Suggestions []string
	Help        []string
	NoColor     bool
}

// FormatError renders a failure as a headline, optional suggestions and
// follow-up commands:
//
//	✗ UNKNOWN ENTITY: Usr
//
//	   Did you mean: User?
//
//	   → List entities: ormctl describe
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		red.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		red.Fprintf(&b, "✗ %s: %s\n", strings.ToUpper(opts.Context), opts.Problem)
	} else {
		red.Fprintf(&b, "✗ %s\n", opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.Help) > 0 {
		b.WriteString("\n")
		for _, h := range opts.Help {
			cyan.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// FormatSuccess renders a one-line success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message) + fmt.Sprintln()
}
