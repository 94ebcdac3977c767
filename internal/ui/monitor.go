// Package ui holds the Bubble Tea models used by the CLI.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"kestrel/internal/kernel"
)

// PollFunc samples the kernel: current tick plus a snapshot of every thread.
type PollFunc func() (uint64, []kernel.ThreadInfo)

type monitorModel struct {
	title   string
	poll    PollFunc
	refresh time.Duration
	spinner spinner.Model
	tick    uint64
	rows    []kernel.ThreadInfo
	width   int
	done    bool
}

type sampleMsg struct{}

// NewMonitorModel returns a Bubble Tea model that renders a live view of
// kernel thread states, refreshed at the given interval.
func NewMonitorModel(title string, poll PollFunc, refresh time.Duration) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	tick, rows := poll()
	return &monitorModel{
		title:   title,
		poll:    poll,
		refresh: refresh,
		spinner: sp,
		tick:    tick,
		rows:    rows,
		width:   80,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.sampleAfter())
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sampleMsg:
		m.tick, m.rows = m.poll()
		return m, m.sampleAfter()
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *monitorModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s %s  tick %d", m.spinner.View(), m.title, m.tick)
	if m.done {
		header = fmt.Sprintf("stopped: %s  tick %d", m.title, m.tick)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := m.width - 30
	if nameWidth < 12 {
		nameWidth = 12
	}

	rows := append([]kernel.ThreadInfo(nil), m.rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	b.WriteString(fmt.Sprintf("  %4s  %-*s %5s %5s  %s\n", "id", nameWidth, "name", "prio", "base", "state"))
	for _, r := range rows {
		state := styleState(r.State).Render(fmt.Sprintf("%-10s", r.State))
		b.WriteString(fmt.Sprintf("  %4d  %-*s %5d %5d  %s\n",
			r.ID, nameWidth, truncate(r.Name, nameWidth), r.Priority, r.BasePrio, state))
	}

	b.WriteString("\n  press q to quit\n")
	return b.String()
}

func (m *monitorModel) sampleAfter() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return sampleMsg{} })
}

func styleState(s kernel.ThreadState) lipgloss.Style {
	switch s {
	case kernel.StateRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	case kernel.StateReady:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	case kernel.StateWaiting, kernel.StateWaitingTimeout, kernel.StateSuspended:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
