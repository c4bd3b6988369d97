package ui

import "github.com/charmbracelet/lipgloss"

const (
	statusBarHeight = 1
	headerHeight    = 2
	ellipsis        = "…"
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	dimFg     = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}

	statusBarBg = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	// Speakers cycle through these in roster order.
	speakerColors = []lipgloss.AdaptiveColor{
		{Light: "#1C8760", Dark: "#89F0CB"},
		{Light: "#A550DF", Dark: "#EE6FF8"},
		{Light: "#0B7FC2", Dark: "#6CC4FF"},
		{Light: "#C1631E", Dark: "#FFB86C"},
		{Light: "#B8323C", Dark: "#FF7A85"},
		{Light: "#6A7F12", Dark: "#D7F56C"},
	}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(dimFg).
				Background(statusBarBg).
				Render

	statusBarQueueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(dimFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	titleStyle   = lipgloss.NewStyle().Bold(true).Render
	roleStyle    = lipgloss.NewStyle().Foreground(dimFg).Italic(true).Render
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#FFFF87"}).Render
	spinnerStyle = lipgloss.NewStyle().Foreground(fuchsia)
)
