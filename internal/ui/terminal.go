package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions, falling
// back to whether w is a terminal.
func ShouldUseColor(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal(w)
}

// Hinter writes human-readable notes next to JSON output. Notes are only
// written when a person is watching.
type Hinter struct {
	w           io.Writer
	interactive bool
	color       bool
}

// NewHinter returns a Hinter for w.
func NewHinter(w io.Writer) *Hinter {
	return &Hinter{w: w, interactive: IsTerminal(w), color: ShouldUseColor(w)}
}

// Enabled reports whether notes are written.
func (h *Hinter) Enabled() bool {
	return h.interactive
}

func (h *Hinter) style(render func(string) string, s string) string {
	if !h.color {
		return s
	}
	return render(s)
}

// Failure prints an error line with optional detail lines and a hint.
func (h *Hinter) Failure(message, hint string, details ...string) {
	if !h.Enabled() {
		return
	}
	_, _ = fmt.Fprintf(h.w, "%s %s\n", h.style(RenderFail, IconFail), message)
	for _, d := range details {
		_, _ = fmt.Fprintf(h.w, "%s%s\n", h.style(RenderMuted, TreeChild), d)
	}
	if hint = strings.TrimSpace(hint); hint != "" {
		_, _ = fmt.Fprintf(h.w, "%s %s\n", h.style(RenderAccent, IconInfo), h.style(RenderMuted, hint))
	}
}

// Warn prints a warning line.
func (h *Hinter) Warn(message string) {
	if !h.Enabled() {
		return
	}
	_, _ = fmt.Fprintf(h.w, "%s %s\n", h.style(RenderWarn, IconWarn), message)
}

// Success prints a confirmation line.
func (h *Hinter) Success(message string) {
	if !h.Enabled() {
		return
	}
	_, _ = fmt.Fprintf(h.w, "%s %s\n", h.style(RenderPass, IconPass), message)
}
