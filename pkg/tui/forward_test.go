package tui

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func envelopeMessage(t *testing.T, typ string, payload any) *message.Message {
	t.Helper()
	env, err := events.NewEnvelope(typ, payload)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), b)
}

func TestForward_TranslatesEnvelopes(t *testing.T) {
	r := &recorder{}

	require.NoError(t, forward(envelopeMessage(t, events.TypeSupervisor, supervise.Event{Type: supervise.EventPhaseChanged, Phase: supervise.PhaseReady}), r))
	require.NoError(t, forward(envelopeMessage(t, events.TypeInstall, events.InstallEvent{Started: true}), r))
	require.NoError(t, forward(envelopeMessage(t, events.TypeNotice, events.Notice{Level: events.LevelWarn, Text: "x"}), r))
	require.NoError(t, forward(envelopeMessage(t, "unknown", nil), r))

	require.Len(t, r.msgs, 3)
	sup, ok := r.msgs[0].(SupervisorEventMsg)
	require.True(t, ok)
	require.Equal(t, supervise.PhaseReady, sup.Event.Phase)
	inst, ok := r.msgs[1].(InstallEventMsg)
	require.True(t, ok)
	require.True(t, inst.Event.Started)
	n, ok := r.msgs[2].(NoticeMsg)
	require.True(t, ok)
	require.Equal(t, "x", n.Notice.Text)
}

func TestForward_RejectsGarbage(t *testing.T) {
	r := &recorder{}
	err := forward(message.NewMessage(watermill.NewUUID(), []byte("{not json")), r)
	require.Error(t, err)
	require.Empty(t, r.msgs)
}

func TestRegisterForwarder_PreservesOrder(t *testing.T) {
	bus, err := events.NewInMemoryBus()
	require.NoError(t, err)
	r := &recorder{}
	RegisterForwarder(bus, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	<-bus.Running()

	pub := events.NewPublisher(bus.Publisher)
	const n = 200
	for i := 1; i <= n; i++ {
		pub.Observe(supervise.Event{Type: supervise.EventProbeAttempt, Attempt: i})
	}

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.msgs) == n
	}, 5*time.Second, 10*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, msg := range r.msgs {
		ev, ok := msg.(SupervisorEventMsg)
		require.True(t, ok)
		require.Equal(t, i+1, ev.Event.Attempt)
	}
}
