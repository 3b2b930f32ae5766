package messaging

import (
	"context"
)

// Message of a queue
type Message struct {
	ID   string
	Data []byte
	// TryCount starts at 1 and increases each time the message is redelivered
	TryCount int
}

// Callback handles one message. A non-nil error requeues the message.
type Callback func(ctx context.Context, msg *Message) error

// Consumer of a job queue
type Consumer interface {
	// Pull messages until ctx is done, calling cb for each of them
	Pull(ctx context.Context, cb Callback) error
}

// Publisher on an event queue
type Publisher interface {
	Publish(ctx context.Context, data ...[]byte) error
}
