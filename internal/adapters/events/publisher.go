package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher is the broker-less publisher used when no Kafka brokers are
// configured. Events are written to the structured log and acknowledged.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.logging_publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

// LoggingBroadcaster stands in for the Redis fan-out in single-node runs.
type LoggingBroadcaster struct {
	logger *slog.Logger
}

func NewLoggingBroadcaster(logger *slog.Logger) *LoggingBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingBroadcaster{logger: logger}
}

func (b *LoggingBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	b.logger.DebugContext(ctx, "broadcast",
		"module", "events.logging_broadcaster",
		"layer", "adapter",
		"operation", "broadcast",
		"outcome", "success",
		"topic", topic,
		"payload", string(payload),
	)
	return nil
}
