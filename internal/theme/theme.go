package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for table headers and command titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// CellStyle is the base style for table cells.
var CellStyle = lipgloss.NewStyle().
	Padding(0, 1)

// HelpStyle is used for hints printed after command output.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// BorderStyle provides the border color for tables.
var BorderStyle = lipgloss.NewStyle().
	Foreground(ColorBorder)

// Project states shown by the projects table.
const (
	StateOK       = "ok"
	StateFailing  = "failing"
	StateBacklog  = "retrying"
	StateUnlinked = "unlinked"
)

// StateStyle returns a color-coded style for a project sync state.
func StateStyle(state string) lipgloss.Style {
	base := CellStyle.Bold(true)

	switch state {
	case StateOK:
		return base.Foreground(ColorGreen)
	case StateBacklog:
		return base.Foreground(ColorYellow)
	case StateFailing:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}
