package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes user-facing status lines, coloured only on a terminal.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// NewPrinter returns a Printer for w. Colour is enabled when w is a TTY.
func NewPrinter(w io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		profile = termenv.ColorProfile()
	}
	return &Printer{w: w, profile: profile}
}

// Success prints a green line.
func (p *Printer) Success(format string, args ...any) {
	p.line("#22c55e", format, args...)
}

// Warn prints a yellow line.
func (p *Printer) Warn(format string, args ...any) {
	p.line("#eab308", format, args...)
}

// Fail prints a red line.
func (p *Printer) Fail(format string, args ...any) {
	p.line("#ef4444", format, args...)
}

// Plain prints an uncoloured line.
func (p *Printer) Plain(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) line(color, format string, args ...any) {
	s := p.profile.String(fmt.Sprintf(format, args...)).Foreground(p.profile.Color(color))
	fmt.Fprintln(p.w, s)
}
