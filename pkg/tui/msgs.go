// Package tui renders launcher progress in the terminal. Messages arrive
// from the event bus through RegisterForwarder.
package tui

import (
	"time"

	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type EventLogEntry struct {
	At     time.Time
	Source string
	Level  LogLevel
	Text   string
}

type SupervisorEventMsg struct {
	Event supervise.Event
}

type InstallEventMsg struct {
	Event events.InstallEvent
}

type NoticeMsg struct {
	Notice events.Notice
}

// LaunchDoneMsg is sent once EnsureRunning has returned.
type LaunchDoneMsg struct {
	Ready bool
	URL   string
	Err   error
}
