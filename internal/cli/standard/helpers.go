package standard

import (
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// printer renders human output, styled only when writing to a terminal.
type printer struct {
	out    io.Writer
	styled bool
	header lipgloss.Style
	accent lipgloss.Style
	muted  lipgloss.Style
}

func newPrinter(out io.Writer) printer {
	p := printer{out: out}
	if f, ok := out.(*os.File); ok && os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(f.Fd())) {
		p.styled = true
		p.header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		p.accent = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		p.muted = lipgloss.NewStyle().Faint(true)
	}
	return p
}

func (p printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p printer) Header(s string) string { return p.render(p.header, s) }
func (p printer) Accent(s string) string { return p.render(p.accent, s) }
func (p printer) Muted(s string) string  { return p.render(p.muted, s) }
