package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"github.com/webdevreplits/PlatformSupport/pkg/bootstrap"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

// Publisher forwards launcher activity onto the bus. It implements
// supervise.Observer.
type Publisher struct {
	pub message.Publisher
}

var _ supervise.Observer = (*Publisher)(nil)

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Observe(ev supervise.Event) {
	if err := publish(p.pub, TypeSupervisor, ev); err != nil {
		log.Debug().Err(err).Str("event", string(ev.Type)).Msg("publish supervisor event")
	}
}

func (p *Publisher) InstallStarted() {
	_ = publish(p.pub, TypeInstall, InstallEvent{At: time.Now(), Started: true})
}

func (p *Publisher) InstallFinished(res bootstrap.Result, err error) {
	ev := InstallEvent{At: time.Now(), Outcome: string(res.Outcome), Duration: res.Duration.Milliseconds()}
	if err != nil {
		ev.Error = err.Error()
	}
	_ = publish(p.pub, TypeInstall, ev)
}

func (p *Publisher) Notice(level Level, text string) {
	_ = publish(p.pub, TypeNotice, Notice{At: time.Now(), Level: level, Text: text})
}
