// Package styles holds the terminal palette of pointers: record styling for
// command output and the markdown style of the help text.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"

	"pointers/internal/analysis"
)

// Output renders command output. A disabled Output produces exactly the
// plain text of the records.
type Output struct {
	enabled bool

	header  lipgloss.Style
	addr    lipgloss.Style
	symbol  lipgloss.Style
	section lipgloss.Style
	arrow   lipgloss.Style
	failure lipgloss.Style
	usage   lipgloss.Style
}

func NewOutput(enabled bool) *Output {
	return &Output{
		enabled: enabled,
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex())).Bold(true),
		addr:    lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())),
		symbol:  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex())),
		section: lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Squid.Hex())),
		arrow:   lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Charple.Hex())),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex())),
		usage:   lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Smoke.Hex())),
	}
}

func (o *Output) Enabled() bool { return o.enabled }

func (o *Output) render(s lipgloss.Style, text string) string {
	if !o.enabled {
		return text
	}
	return s.Render(text)
}

func (o *Output) Header(text string) string { return o.render(o.header, text) }

func (o *Output) Failure(text string) string { return o.render(o.failure, text) }

func (o *Output) Usage(text string) string { return o.render(o.usage, text) }

// Record renders rec the way AddressRecord.String formats it.
func (o *Output) Record(rec analysis.AddressRecord) string {
	if !o.enabled {
		return rec.String()
	}
	var b strings.Builder
	b.WriteString(o.addr.Render(rec.Hex()))
	switch {
	case !rec.Resolved():
	case !rec.Named():
		b.WriteString(" in section ")
		b.WriteString(o.section.Render(rec.Section))
		b.WriteString(" of ")
		b.WriteString(o.section.Render(rec.Module))
	default:
		b.WriteString(" ")
		b.WriteString(o.symbol.Render("<" + rec.Symbol + ">"))
		if rec.Chain != nil {
			b.WriteString(o.arrow.Render(" -> "))
			b.WriteString(o.Record(*rec.Chain))
		}
	}
	return b.String()
}
