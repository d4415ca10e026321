package control

import (
	"context"
	"errors"

	"github.com/nerrad567/graycam/internal/bridge"
)

var errHandlerPanic = errors.New("control: handler panicked")

// StatusPublisher publishes a status document on demand.
type StatusPublisher interface {
	PublishNow() error
}

// ImagePublisher publishes a camera frame on demand.
type ImagePublisher interface {
	PublishNow(ctx context.Context) error
}

// RegisterCommands installs the built-in Cmd/Status and Cmd/Snapshot
// handlers. Either publisher may be nil to leave its command unhandled.
func (d *Dispatcher) RegisterCommands(status StatusPublisher, image ImagePublisher) {
	if status != nil {
		d.Register(CmdStatus, func(context.Context, bridge.Record) error {
			return status.PublishNow()
		})
	}
	if image != nil {
		d.Register(CmdSnapshot, func(ctx context.Context, _ bridge.Record) error {
			return image.PublishNow(ctx)
		})
	}
}
