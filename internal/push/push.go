// Package push is the engine's best-effort delivery seam. The engine
// only needs "deliver payload to subscriber"; what an endpoint handle
// means belongs to the concrete driver.
package push

import (
	"context"
	"errors"

	"remindd/internal/model"
)

var ErrDisabled = errors.New("push: disabled")

// Payload is what a driver delivers.
type Payload struct {
	Title string
	Body  string

	// TaskID lets rich clients deep-link; plain drivers ignore it.
	TaskID string
}

// Sender delivers one payload to one subscriber. A returned error marks
// the subscriber stale; it never aborts delivery to other subscribers.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscriber, p Payload) error
}

// Disabled rejects every delivery; dispatchers skip the push channel
// when they see ErrDisabled.
type Disabled struct{}

func (Disabled) Send(context.Context, *model.PushSubscriber, Payload) error {
	return ErrDisabled
}
