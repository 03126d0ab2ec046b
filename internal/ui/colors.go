package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/tunemeld/internal/providers"
)

// DefaultPalette is the palette used by the command line.
var DefaultPalette = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

// NewPalette builds a palette from title, success, error, warning and help foreground colors.
func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Kind renders an outcome kind: ok in the success color, cancellations muted,
// auth and entitlement problems as errors and everything else as a warning.
func (p *Palette) Kind(k providers.Kind) string {
	switch k {
	case providers.KindOK:
		return p.OK(k.String())
	case providers.KindCancelled:
		return p.Help(k.String())
	case providers.KindAuthFailed, providers.KindNotEntitled, providers.KindPluginError:
		return p.Err(k.String())
	default:
		return p.Warn(k.String())
	}
}
