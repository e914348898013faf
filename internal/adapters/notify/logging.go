package notify

import (
	"context"
	"log/slog"
)

// LoggingSender writes messages to the log instead of a mailbox.
type LoggingSender struct {
	logger *slog.Logger
}

func NewLoggingSender(logger *slog.Logger) *LoggingSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification sent",
		"module", "notify.logging",
		"layer", "adapter",
		"operation", "send",
		"outcome", "success",
		"destination", msg.Destination,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
