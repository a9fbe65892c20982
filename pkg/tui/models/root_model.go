package models

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
	"github.com/webdevreplits/PlatformSupport/pkg/tui"
	"github.com/webdevreplits/PlatformSupport/pkg/tui/styles"
)

type StepState string

const (
	StepPending StepState = "pending"
	StepActive  StepState = "active"
	StepDone    StepState = "done"
	StepSkipped StepState = "skipped"
	StepFailed  StepState = "failed"
)

type RootOptions struct {
	Title        string
	Environment  string
	Target       string
	MaxAttempts  int
	DashboardURL string
}

// RootModel shows the launch steps (dependencies, server) above the event log.
type RootModel struct {
	opts RootOptions

	width  int
	height int

	spinner spinner.Model
	events  EventLogModel

	deps       StepState
	depsDetail string

	server      StepState
	phase       supervise.Phase
	attempt     int
	lastOutcome string
	pid         int

	done  bool
	ready bool
	err   string
}

func NewRootModel(opts RootOptions) RootModel {
	if opts.Title == "" {
		opts.Title = "platformctl"
	}
	return RootModel{
		opts:    opts,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		events:  NewEventLogModel().WithSize(80, 12),
		deps:    StepPending,
		server:  StepPending,
		phase:   supervise.PhaseNotStarted,
	}
}

func (m RootModel) Init() tea.Cmd { return m.spinner.Tick }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		m.events = m.events.WithSize(v.Width, maxInt(6, v.Height-10))
		return m, nil
	case tea.KeyMsg:
		if !m.events.Searching() {
			switch v.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			}
		}
		var cmd tea.Cmd
		m.events, cmd = m.events.Update(v)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(v)
		return m, cmd
	case tui.InstallEventMsg:
		return m.applyInstall(v.Event), nil
	case tui.SupervisorEventMsg:
		return m.applySupervisor(v.Event), nil
	case tui.NoticeMsg:
		m.events = m.events.Append(tui.EventLogEntry{At: v.Notice.At, Level: tui.LogLevel(v.Notice.Level), Text: v.Notice.Text})
		return m, nil
	case tui.LaunchDoneMsg:
		m.done, m.ready = true, v.Ready
		if v.Ready {
			m.server = StepDone
			m.events = m.events.Append(tui.EventLogEntry{Source: "server", Text: "ready at " + v.URL})
		} else {
			m.server = StepFailed
			if v.Err != nil {
				m.err = v.Err.Error()
			}
		}
		return m, nil
	}
	return m, nil
}

func (m RootModel) applyInstall(ev events.InstallEvent) RootModel {
	entry := tui.EventLogEntry{At: ev.At, Source: "deps"}
	switch {
	case ev.Started:
		m.deps = StepActive
		entry.Text = "installing dependencies"
	case ev.Outcome == "skipped":
		m.deps = StepSkipped
		m.depsDetail = "already installed"
		entry.Text = "dependencies already installed"
	case ev.Error != "":
		m.deps = StepFailed
		m.depsDetail = "install failed, continuing"
		entry.Level = tui.LogLevelWarn
		entry.Text = ev.Error
	default:
		m.deps = StepDone
		m.depsDetail = fmt.Sprintf("installed in %.1fs", float64(ev.Duration)/1000)
		entry.Text = "dependencies installed"
	}
	m.events = m.events.Append(entry)
	return m
}

func (m RootModel) applySupervisor(ev supervise.Event) RootModel {
	entry := tui.EventLogEntry{At: ev.At, Source: "server"}
	switch ev.Type {
	case supervise.EventProbeAttempt:
		if ev.Attempt > 0 {
			m.attempt = ev.Attempt
		}
		if ev.Probe != nil {
			m.lastOutcome = string(ev.Probe.Outcome)
		}
		// Probes are shown in the step line only.
		return m
	case supervise.EventProcessSpawned:
		m.pid = ev.PID
		entry.Text = fmt.Sprintf("spawned pid %d: %s", ev.PID, ev.Message)
	case supervise.EventProcessExited:
		entry.Level = tui.LogLevelWarn
		entry.Text = fmt.Sprintf("pid %d exited: %s", ev.PID, ev.Message)
	case supervise.EventPhaseChanged:
		m.phase = ev.Phase
		switch ev.Phase {
		case supervise.PhaseStarting:
			m.server = StepActive
		case supervise.PhaseReady:
			m.server = StepDone
		case supervise.PhaseFailed:
			m.server = StepFailed
			m.err = ev.Message
			entry.Level = tui.LogLevelError
		case supervise.PhaseStopped:
			m.server = StepPending
		}
		entry.Text = "phase " + string(ev.Phase)
		if ev.Message != "" {
			entry.Text += ": " + ev.Message
		}
	default:
		return m
	}
	m.events = m.events.Append(entry)
	return m
}

func (m RootModel) View() string {
	theme := styles.DefaultTheme()

	var b strings.Builder
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		theme.Title.Render(m.opts.Title),
		"  ",
		theme.Badge.Render(m.opts.Environment),
		"  ",
		theme.TitleMuted.Render(m.opts.Target),
	)
	b.WriteString(header + "\n\n")

	b.WriteString(m.stepLine("Dependencies", m.deps, m.depsDetail) + "\n")
	b.WriteString(m.stepLine("Server", m.server, m.serverDetail()) + "\n\n")

	switch {
	case m.ready:
		b.WriteString(theme.PhaseDone.Render(styles.IconSuccess+" The app is available at "+m.opts.Target) + "\n")
		if m.opts.DashboardURL != "" {
			b.WriteString(theme.TitleMuted.Render("  dashboard: "+m.opts.DashboardURL) + "\n")
		}
		b.WriteString("\n")
	case m.server == StepFailed && m.err != "":
		b.WriteString(theme.PhaseFailed.Render(styles.IconError+" "+m.err) + "\n\n")
	}

	b.WriteString(m.events.View() + "\n")
	b.WriteString(theme.KeybindKey.Render("q") + theme.TitleMuted.Render(" quit"))
	return b.String()
}

func (m RootModel) serverDetail() string {
	switch m.server {
	case StepActive:
		d := fmt.Sprintf("waiting for server, attempt %d/%d", m.attempt, m.opts.MaxAttempts)
		if m.lastOutcome != "" {
			d += " (" + m.lastOutcome + ")"
		}
		return d
	case StepDone:
		if m.pid > 0 {
			return fmt.Sprintf("running (pid %d)", m.pid)
		}
		return "already running"
	case StepFailed:
		return "not ready"
	}
	return ""
}

func (m RootModel) stepLine(name string, st StepState, detail string) string {
	theme := styles.DefaultTheme()
	var icon string
	style := theme.PhasePending
	switch st {
	case StepActive:
		icon, style = m.spinner.View(), theme.PhaseActive
	case StepDone:
		icon, style = styles.IconSuccess, theme.PhaseDone
	case StepSkipped:
		icon, style = styles.IconSkipped, theme.PhaseDone
	case StepFailed:
		icon, style = styles.IconError, theme.PhaseFailed
	default:
		icon = styles.IconPending
	}
	line := style.Render(icon) + " " + theme.Title.Render(fmt.Sprintf("%-13s", name))
	if detail != "" {
		line += " " + theme.TitleMuted.Render(detail)
	}
	return line
}

// Steps exposes the step states for callers that render their own summary.
func (m RootModel) Steps() (deps, server StepState) { return m.deps, m.server }
