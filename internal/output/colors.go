package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for console reports.
type ColorScheme struct {
	Title     *color.Color
	Label     *color.Color
	Success   *color.Color
	Failure   *color.Color
	Warning   *color.Color
	Highlight *color.Color
	Dim       *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.FgCyan, color.Bold),
		Label:     color.New(color.FgWhite),
		Success:   color.New(color.FgGreen, color.Bold),
		Failure:   color.New(color.FgRed, color.Bold),
		Warning:   color.New(color.FgYellow),
		Highlight: color.New(color.FgMagenta, color.Bold),
		Dim:       color.New(color.Faint),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range []*color.Color{s.Title, s.Label, s.Success, s.Failure, s.Warning, s.Highlight, s.Dim} {
		c.DisableColor()
	}
	return s
}

// SchemeFor picks the scheme for a terminal; color.NoColor already reflects
// NO_COLOR and whether stdout is a TTY.
func SchemeFor(noColor bool) *ColorScheme {
	if noColor || color.NoColor {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}
