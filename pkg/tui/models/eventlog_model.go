package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/webdevreplits/PlatformSupport/pkg/tui"
	"github.com/webdevreplits/PlatformSupport/pkg/tui/styles"
	"github.com/webdevreplits/PlatformSupport/pkg/tui/widgets"
)

type EventLogModel struct {
	max     int
	entries []tui.EventLogEntry

	width  int
	height int

	searching bool
	search    textinput.Model
	filter    string

	vp viewport.Model
}

func NewEventLogModel() EventLogModel {
	search := textinput.New()
	search.Placeholder = "filter…"
	search.Prompt = "/ "
	search.CharLimit = 200

	return EventLogModel{max: 200, search: search, vp: viewport.New(0, 0)}
}

func (m EventLogModel) WithSize(width, height int) EventLogModel {
	m.width, m.height = width, height
	m.vp.Width = maxInt(0, width-2)
	m.vp.Height = maxInt(3, height-4)
	return m.refresh(false)
}

func (m EventLogModel) Searching() bool { return m.searching }

func (m EventLogModel) Entries() []tui.EventLogEntry { return m.entries }

func (m EventLogModel) Update(msg tea.Msg) (EventLogModel, tea.Cmd) {
	v, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		switch v.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.filter = strings.TrimSpace(m.search.Value())
			m.searching = false
			m.search.Blur()
			return m.refresh(true), nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(v)
		return m, cmd
	}

	switch v.String() {
	case "/":
		m.searching = true
		m.search.SetValue(m.filter)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		return m.refresh(true), nil
	case "c":
		m.entries = nil
		return m.refresh(true), nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(v)
	return m, cmd
}

func (m EventLogModel) Append(e tui.EventLogEntry) EventLogModel {
	m.entries = append(m.entries, e)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = append([]tui.EventLogEntry{}, m.entries[len(m.entries)-m.max:]...)
	}
	return m.refresh(true)
}

func (m EventLogModel) View() string {
	theme := styles.DefaultTheme()

	right := "[/] filter  [c] clear"
	if m.filter != "" {
		right = fmt.Sprintf("filter=%q  %s", m.filter, right)
	}

	var sections []string
	if m.searching {
		sections = append(sections, m.search.View())
	}

	content := m.vp.View()
	height := m.vp.Height + 3
	if len(m.entries) == 0 {
		content = theme.TitleMuted.Render("(no events yet)")
		height = 5
	}
	box := widgets.NewBox(fmt.Sprintf("Events (%d)", len(m.entries))).
		WithTitleRight(right).
		WithContent(content).
		WithSize(m.width, height)
	sections = append(sections, box.Render())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m EventLogModel) refresh(gotoBottom bool) EventLogModel {
	theme := styles.DefaultTheme()

	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if !m.matches(e) {
			continue
		}
		ts := e.At
		if ts.IsZero() {
			ts = time.Now()
		}
		source := e.Source
		if source == "" {
			source = "launcher"
		}
		level := e.Level
		if level == "" {
			level = tui.LogLevelInfo
		}

		style := theme.TitleMuted
		switch level {
		case tui.LogLevelError:
			style = theme.PhaseFailed
		case tui.LogLevelWarn:
			style = lipgloss.NewStyle().Foreground(theme.Warning)
		}

		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			style.Render(styles.LogLevelIcon(string(level))),
			" ",
			theme.TitleMuted.Render(ts.Format("15:04:05")),
			" ",
			theme.TitleMuted.Render("["+source+"]"),
			"  ",
			style.Render(e.Text),
		))
	}
	if len(lines) == 0 {
		m.vp.SetContent("")
		return m
	}
	m.vp.SetContent(strings.Join(lines, "\n") + "\n")
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}

// matches filters case-insensitively on text and source.
func (m EventLogModel) matches(e tui.EventLogEntry) bool {
	if m.filter == "" {
		return true
	}
	f := strings.ToLower(m.filter)
	return strings.Contains(strings.ToLower(e.Text), f) || strings.ToLower(e.Source) == f
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
