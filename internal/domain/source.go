package domain

import "context"

// Source ingests events from one platform, validates them, and publishes
// Discord-ready messages to the bus. Start blocks until ctx is cancelled.
type Source interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// Forwarder delivers a message to its destination webhook with a single
// outbound HTTP call. Failed deliveries are not retried.
type Forwarder interface {
	Forward(ctx context.Context, msg Message) error
}

// MessageBus routes transformed messages from sources to the relay loop.
type MessageBus interface {
	Publish(msg Message)
	Subscribe() <-chan Message
	Close()
}
