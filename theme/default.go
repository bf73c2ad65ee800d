package theme

import (
	"github.com/pterm/pterm"
)

// Theme defines the colour scheme and styling for the application
type Theme struct {
	// Log level colours
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Fatal *pterm.Style

	// Component colours
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style
	Accent    *pterm.Style

	// Functional colours
	Counts  pterm.Color
	Account pterm.Color
	Numbers pterm.Color

	// Account health colours
	StatusHealthy   pterm.Color
	StatusProbation pterm.Color
	StatusCooldown  pterm.Color
	StatusDisabled  pterm.Color
	StatusLocked    pterm.Color
}

// Default returns the default application theme
func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Counts:  pterm.FgLightCyan,
		Account: pterm.FgCyan,
		Numbers: pterm.FgLightYellow,

		StatusHealthy:   pterm.FgGreen,
		StatusProbation: pterm.FgYellow,
		StatusCooldown:  pterm.FgLightYellow,
		StatusDisabled:  pterm.FgGray,
		StatusLocked:    pterm.FgRed,
	}
}

// Dark returns a dark theme variant
func Dark() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgLightGreen)
	t.Warn = pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)
	t.Error = pterm.NewStyle(pterm.FgLightRed, pterm.Bold)
	t.Success = pterm.NewStyle(pterm.FgLightGreen, pterm.Bold)
	t.Highlight = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	t.Accent = pterm.NewStyle(pterm.FgLightMagenta)
	t.Account = pterm.FgLightCyan
	t.StatusHealthy = pterm.FgLightGreen
	t.StatusLocked = pterm.FgLightRed
	return t
}

// GetTheme returns the appropriate theme based on environment or preference
func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	default:
		return Default()
	}
}

// ColourSplash Colours for the splash screen
func ColourSplash(message ...any) string {
	return pterm.LightGreen(message...)
}

// ColourVersion Colours Version numbers, used for the splash screen
func ColourVersion(message ...any) string {
	return pterm.LightYellow(message...)
}

// StyleUrl Colours for URLs and hyperlinks
func StyleUrl(message ...any) string {
	return pterm.LightBlue(message...)
}

// Hyperlink creates a hyperlink in the terminal
func Hyperlink(uri string, text string) string {
	return "\x1b]8;;" + uri + "\x07" + text + "\x1b]8;;\x07" + "\u001b[0m"
}
