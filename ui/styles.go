package ui

import "github.com/charmbracelet/lipgloss"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	yellow    = lipgloss.Color("#ECFD65")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	appNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Padding(0, 1)

	referenceStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(1)

	verseNumberStyle = lipgloss.NewStyle().Foreground(gray)

	detailStyle = lipgloss.NewStyle().Foreground(gray)

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	errorStyle = lipgloss.NewStyle().Foreground(red)
)

func stateStyle(name string) lipgloss.Style {
	switch name {
	case "playing":
		return lipgloss.NewStyle().Foreground(mintGreen)
	case "paused":
		return lipgloss.NewStyle().Foreground(yellow)
	case "error":
		return errorStyle
	default:
		return detailStyle
	}
}
