package supervise

import "time"

type EventType string

const (
	EventPhaseChanged   EventType = "phase.changed"
	EventProbeAttempt   EventType = "probe.attempt"
	EventProcessSpawned EventType = "process.spawned"
	EventProcessExited  EventType = "process.exited"
)

type Event struct {
	Type    EventType     `json:"type"`
	At      time.Time     `json:"at"`
	Phase   Phase         `json:"phase"`
	Attempt int           `json:"attempt,omitempty"`
	PID     int           `json:"pid,omitempty"`
	Probe   *ProbeSummary `json:"probe,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Observer receives supervisor events synchronously; implementations must
// not block.
type Observer interface {
	Observe(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }
