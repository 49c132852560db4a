// Package ui renders CLI output with Lip Gloss.
//
// Colour is decided once by Init: it is off when stdout is not a terminal,
// when NO_COLOR is set, or when the caller asks for plain output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	subjectStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

var colorEnabled = true

// Init picks the colour profile for out. Pass plain to force monochrome.
func Init(out *os.File, plain bool) {
	enabled := !plain && os.Getenv("NO_COLOR") == "" && IsTerminal(out)
	SetColor(enabled)
}

// SetColor turns colour output on or off.
func SetColor(enabled bool) {
	colorEnabled = enabled
	if enabled {
		lipgloss.SetColorProfile(termenv.ColorProfile())
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ColorEnabled reports whether styled output carries colour.
func ColorEnabled() bool {
	return colorEnabled
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func RenderTitle(s string) string   { return titleStyle.Render(s) }
func RenderPass(s string) string    { return passStyle.Render(s) }
func RenderWarn(s string) string    { return warnStyle.Render(s) }
func RenderFail(s string) string    { return failStyle.Render(s) }
func RenderAccent(s string) string  { return accentStyle.Render(s) }
func RenderMuted(s string) string   { return mutedStyle.Render(s) }
func RenderSubject(s string) string { return subjectStyle.Render(s) }

// OK prints a success line to w.
func OK(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, RenderPass("✔ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line to w.
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, RenderWarn("⚠ "+fmt.Sprintf(format, args...)))
}

// Fail prints an error line to w.
func Fail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, RenderFail("✖ "+fmt.Sprintf(format, args...)))
}

// Panel draws lines inside a rounded border.
func Panel(lines ...string) string {
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// ProgressBar renders done/total as a fixed-width bar.
func ProgressBar(done, total, width int) string {
	if width <= 0 {
		width = 28
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %d/%d", done, total)
}
