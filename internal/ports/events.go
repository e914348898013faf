package ports

import "context"

// EventPublisher is the outbound domain-event publish port used by the outbox worker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, partitionKey string, payload []byte) error
}

// Broadcaster fans state changes out to connected clients. Delivery is
// at-most-once and callers never wait on listeners.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Notifier delivers a message to a principal's contact channel. Implementations
// may queue; callers treat every error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, destination, subject, body string) error
}
