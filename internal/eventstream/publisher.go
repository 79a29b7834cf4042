package eventstream

import "context"

// Publisher publishes lifecycle events to an event stream backend.
type Publisher interface {
	PublishGroupRetired(ctx context.Context, event *GroupRetiredEvent) error
	Close() error
}
