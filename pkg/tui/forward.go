package tui

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

func RegisterForwarder(bus *events.Bus, p Sender) {
	bus.AddHandler("platformctl-ui-forward", events.TopicLauncher, func(msg *message.Message) error {
		defer msg.Ack()
		return forward(msg, p)
	})
}

func forward(msg *message.Message, p Sender) error {
	env, err := events.DecodeEnvelope(msg)
	if err != nil {
		return err
	}

	switch env.Type {
	case events.TypeSupervisor:
		var m SupervisorEventMsg
		if err := json.Unmarshal(env.Payload, &m.Event); err != nil {
			return errors.Wrap(err, "unmarshal supervisor event")
		}
		p.Send(m)
	case events.TypeInstall:
		var m InstallEventMsg
		if err := json.Unmarshal(env.Payload, &m.Event); err != nil {
			return errors.Wrap(err, "unmarshal install event")
		}
		p.Send(m)
	case events.TypeNotice:
		var m NoticeMsg
		if err := json.Unmarshal(env.Payload, &m.Notice); err != nil {
			return errors.Wrap(err, "unmarshal notice")
		}
		p.Send(m)
	}
	return nil
}
