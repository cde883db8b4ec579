package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sencol/hub/internal/theme"
	"github.com/sencol/hub/internal/viewer/client"
)

// statusBar renders connection, recording and device state.
type statusBar struct {
	Connected bool
	Status    *client.Status
	Err       error
	Width     int
}

func (s statusBar) View() string {
	width := s.Width
	if width < 40 {
		width = 40
	}

	var conn string
	if s.Connected {
		conn = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	} else {
		conn = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	parts := []string{conn}

	if st := s.Status; st != nil {
		if st.Locked {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorPaused).Render("■ PAUSED"))
		} else {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRecording).Render("● REC"))
		}
		if st.Session != nil {
			parts = append(parts, st.Session.ID)
		}
		var devs []string
		for _, d := range st.Devices {
			name := d.ID
			if d.Retries > 0 {
				name += fmt.Sprintf(" (%d retries)", d.Retries)
			}
			devs = append(devs, lipgloss.NewStyle().Foreground(theme.StateColor(d.State)).
				Render(theme.StateGlyph(d.State)+" "+name))
		}
		if len(devs) > 0 {
			parts = append(parts, strings.Join(devs, "  "))
		}
		parts = append(parts, fmt.Sprintf("%d subs  disk %.0f%%", st.Subscribers, st.Host.DiskUsedPercent))
	} else if s.Err != nil {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("status unavailable"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}
