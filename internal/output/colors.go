package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the parts of a report.
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Stage     *color.Color
	Dim       *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Stage:     color.New(color.FgMagenta),
		Dim:       color.New(color.Faint),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// ForceColors enables every color regardless of the terminal.
func (s *ColorScheme) ForceColors() *ColorScheme {
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Latency, s.Stage,
		s.Dim, s.Success, s.Warn, s.Error, s.Highlight,
	}
}

// rateColor picks green, yellow or red for a success rate.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate < 0.95:
		return s.Error
	case rate < 0.99:
		return s.Warn
	default:
		return s.Success
	}
}

// errorColor picks green, yellow or red for an error rate.
func (s *ColorScheme) errorColor(rate float64) *color.Color {
	return s.rateColor(1 - rate)
}

// SuccessIcon returns a checkmark in the scheme's success color.
func (s *ColorScheme) SuccessIcon() string {
	return s.Success.Sprint("✓")
}

// ErrorIcon returns a cross in the scheme's error color.
func (s *ColorScheme) ErrorIcon() string {
	return s.Error.Sprint("✗")
}
