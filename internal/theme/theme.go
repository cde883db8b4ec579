// Package theme provides the Lip Gloss palette and reusable styles for the
// hub viewer. It is a leaf package with no internal imports.
package theme

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// Device state colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
	ColorShutdown     = lipgloss.Color("#374151")
)

// Recording colors.
var (
	ColorRecording = lipgloss.Color("#dc2626")
	ColorPaused    = lipgloss.Color("#6b7280")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorDefault = lipgloss.Color("#9ca3af")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// seriesPalette colors waveform rows.
var seriesPalette = []lipgloss.Color{
	lipgloss.Color("#a855f7"),
	lipgloss.Color("#3b82f6"),
	lipgloss.Color("#06b6d4"),
	lipgloss.Color("#22c55e"),
	lipgloss.Color("#f59e0b"),
	lipgloss.Color("#ec4899"),
	lipgloss.Color("#10b981"),
	lipgloss.Color("#67e8f9"),
}

// StateColor returns the color for a device connection state.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorConnected
	case "connecting":
		return ColorConnecting
	case "disconnected":
		return ColorDisconnected
	case "shutting_down":
		return ColorShutdown
	default:
		return ColorDefault
	}
}

// HealthColor returns the color for a device health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// StateGlyph returns a glyph for a device connection state.
func StateGlyph(state string) string {
	switch state {
	case "connected":
		return "●"
	case "connecting":
		return "◎"
	case "disconnected":
		return "○"
	case "shutting_down":
		return "✗"
	default:
		return "·"
	}
}

// SeriesColor picks a stable color for a channel name.
func SeriesColor(channel string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(channel))
	return seriesPalette[h.Sum32()%uint32(len(seriesPalette))]
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
