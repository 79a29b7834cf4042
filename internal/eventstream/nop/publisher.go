package nop

import (
	"context"

	"github.com/lazypower/recall/internal/eventstream"
)

// Publisher discards events. It is used when no stream is configured.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishGroupRetired validates input and otherwise does nothing.
func (p *Publisher) PublishGroupRetired(_ context.Context, event *eventstream.GroupRetiredEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

func (p *Publisher) Close() error {
	return nil
}
