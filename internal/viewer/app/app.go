// Package app is the hub viewer's root Bubble Tea model: live waveform
// sparklines, device and session status, and recording control.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sencol/hub/internal/ringbuf"
	"github.com/sencol/hub/internal/theme"
	"github.com/sencol/hub/internal/viewer/client"
)

const statusInterval = 2 * time.Second

// Options controls what the viewer sends with LOG. An empty Name numbers
// trials T1, T2, ...
type Options struct {
	Subject string
	Name    string
	History int // samples kept per channel
}

type statusMsg struct {
	status *client.Status
	err    error
}

type controlMsg struct {
	action string
	err    error
}

type tickMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	keys   KeyMap
	width  int
	height int

	series map[string]*ringbuf.Buffer[float64]
	order  []string
	offset int
	events uint64
	trial  int

	statusBar statusBar
	notice    string
}

func New(ws *client.WSClient, http *client.HTTPClient, opts Options) Model {
	if opts.History <= 0 {
		opts.History = 200
	}
	if opts.Subject == "" {
		opts.Subject = "SUBJECT"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:     ws,
		http:   http,
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		keys:   DefaultKeyMap(),
		series: make(map[string]*ringbuf.Buffer[float64]),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchStatus(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		st, err := m.http.Status()
		return statusMsg{status: st, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.statusBar.Connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.statusBar.Connected = false
		return m, m.ws.Listen(m.ctx)

	case client.EventsMsg:
		m.ingest(msg.Events)
		return m, m.ws.ReadLoop(m.ctx)

	case statusMsg:
		m.statusBar.Status = msg.status
		m.statusBar.Err = msg.err
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStatus(), tick())

	case controlMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.notice = msg.action + " sent"
		}
		return m, m.fetchStatus()
	}
	return m, nil
}

func (m *Model) ingest(events []client.Event) {
	added := false
	for _, ev := range events {
		m.events++
		for _, p := range ev.Points() {
			buf, ok := m.series[p.Channel]
			if !ok {
				buf = ringbuf.New[float64](m.opts.History)
				m.series[p.Channel] = buf
				added = true
			}
			buf.Push(p.Value)
		}
	}
	if added {
		m.order = m.order[:0]
		for ch := range m.series {
			m.order = append(m.order, ch)
		}
		sort.Strings(m.order)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.ws.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if m.offset < len(m.order)-1 {
			m.offset++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.offset > 0 {
			m.offset--
		}
		return m, nil

	case key.Matches(msg, m.keys.Log):
		name := m.opts.Name
		if name == "" {
			m.trial++
			name = fmt.Sprintf("T%d", m.trial)
		}
		subject, http := m.opts.Subject, m.http
		action := fmt.Sprintf("LOG %s_%s", subject, name)
		m.notice = action + "..."
		return m, func() tea.Msg {
			return controlMsg{action: action, err: http.StartLog(subject, name)}
		}

	case key.Matches(msg, m.keys.Stop):
		http := m.http
		m.notice = "STOP_LOG..."
		return m, func() tea.Msg {
			return controlMsg{action: "STOP_LOG", err: http.StopLog()}
		}

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchStatus()

	case key.Matches(msg, m.keys.Clear):
		for _, b := range m.series {
			b.Reset()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	header := m.statusBar.View()
	help := theme.StyleDimmed.Render("  j/k:scroll  l:start log  s:stop log  r:refresh  c:clear  q:quit")
	notice := ""
	if m.notice != "" {
		notice = theme.StyleDimmed.Render("  " + m.notice)
	}
	rows := m.height - lipgloss.Height(header) - 2
	return lipgloss.JoinVertical(lipgloss.Left, header, m.renderPlots(rows), notice, help)
}

const labelWidth = 28

func (m Model) renderPlots(rows int) string {
	if len(m.order) == 0 {
		return theme.StyleDimmed.Render("  waiting for samples")
	}
	if rows < 1 {
		rows = 1
	}
	plotWidth := m.width - labelWidth - 14
	if plotWidth < 10 {
		plotWidth = 10
	}
	var lines []string
	for _, ch := range m.order[min(m.offset, len(m.order)):] {
		if len(lines) == rows {
			break
		}
		values := m.series[ch].Window()
		last := ""
		if len(values) > 0 {
			last = fmt.Sprintf("%12.3f", values[len(values)-1])
		}
		label := ch
		if len(label) > labelWidth-2 {
			label = label[:labelWidth-3] + "…"
		}
		style := lipgloss.NewStyle().Foreground(theme.SeriesColor(ch))
		lines = append(lines,
			lipgloss.NewStyle().Width(labelWidth).Render("  "+label)+
				style.Render(sparkline(values, plotWidth))+" "+last)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
