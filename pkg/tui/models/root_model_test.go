package models

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/probe"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
	"github.com/webdevreplits/PlatformSupport/pkg/tui"
)

func update(t *testing.T, m RootModel, msg tea.Msg) RootModel {
	t.Helper()
	next, _ := m.Update(msg)
	rm, ok := next.(RootModel)
	require.True(t, ok)
	return rm
}

func TestRootModel_ReadyFlow(t *testing.T) {
	m := NewRootModel(RootOptions{
		Title:        "Azure Platform Support",
		Environment:  "Replit",
		Target:       "http://localhost:5000/",
		MaxAttempts:  30,
		DashboardURL: "http://127.0.0.1:8080/",
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	require.NotContains(t, m.View(), "dashboard:")

	m = update(t, m, tui.InstallEventMsg{Event: events.InstallEvent{Started: true}})
	deps, server := m.Steps()
	require.Equal(t, StepActive, deps)
	require.Equal(t, StepPending, server)

	m = update(t, m, tui.InstallEventMsg{Event: events.InstallEvent{Outcome: "installed", Duration: 1500}})
	m = update(t, m, tui.SupervisorEventMsg{Event: supervise.Event{Type: supervise.EventPhaseChanged, Phase: supervise.PhaseStarting}})
	m = update(t, m, tui.SupervisorEventMsg{Event: supervise.Event{Type: supervise.EventProcessSpawned, PID: 77, Message: "npm run dev"}})
	m = update(t, m, tui.SupervisorEventMsg{Event: supervise.Event{Type: supervise.EventProbeAttempt, Attempt: 4, Probe: &supervise.ProbeSummary{Outcome: probe.OutcomeRefused}}})

	deps, server = m.Steps()
	require.Equal(t, StepDone, deps)
	require.Equal(t, StepActive, server)
	view := m.View()
	require.Contains(t, view, "attempt 4/30 (refused)")
	require.Contains(t, view, "installed in 1.5s")
	require.Contains(t, view, "Replit")

	m = update(t, m, tui.SupervisorEventMsg{Event: supervise.Event{Type: supervise.EventPhaseChanged, Phase: supervise.PhaseReady, At: time.Now()}})
	m = update(t, m, tui.LaunchDoneMsg{Ready: true, URL: "http://localhost:5000/"})
	_, server = m.Steps()
	require.Equal(t, StepDone, server)
	require.Contains(t, m.View(), "running (pid 77)")
	require.Contains(t, m.View(), "The app is available at")
	require.Contains(t, m.View(), "dashboard: http://127.0.0.1:8080/")

	// probe attempts are not logged
	require.Len(t, m.events.Entries(), 6)
}

func TestRootModel_FailureShowsError(t *testing.T) {
	m := NewRootModel(RootOptions{Environment: "Local", Target: "http://localhost:5000/", MaxAttempts: 30})
	m = update(t, m, tui.InstallEventMsg{Event: events.InstallEvent{Outcome: "failed", Error: "npm install failed: ERESOLVE"}})
	m = update(t, m, tui.LaunchDoneMsg{Err: errors.New("server not ready after 30 attempts (last probe refused)")})

	deps, server := m.Steps()
	require.Equal(t, StepFailed, deps)
	require.Equal(t, StepFailed, server)
	view := m.View()
	require.Contains(t, view, "install failed, continuing")
	require.Contains(t, view, "server not ready after 30 attempts")
	require.Equal(t, tui.LogLevelWarn, m.events.Entries()[0].Level)
}

func TestRootModel_QuitKeys(t *testing.T) {
	m := NewRootModel(RootOptions{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)

	// while filtering, q is text
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	require.True(t, m.events.Searching())
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.True(t, m.events.Searching())
}

func TestEventLogModel_FilterAndCap(t *testing.T) {
	m := NewEventLogModel().WithSize(80, 10)
	for i := 0; i < 250; i++ {
		m = m.Append(tui.EventLogEntry{Text: "line"})
	}
	require.Len(t, m.Entries(), 200)

	m = m.Append(tui.EventLogEntry{Text: "needle"})
	m.filter = "needle"
	m = m.refresh(true)
	require.Contains(t, m.vp.View(), "needle")
	require.NotContains(t, m.vp.View(), "line")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.Empty(t, m.Entries())
}
