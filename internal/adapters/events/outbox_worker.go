package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/metrics"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

// OutboxRelay leases unpublished outbox rows and hands them to the publisher.
// Rows that keep failing are dead-lettered after maxRetries attempts.
type OutboxRelay struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

type RelayOptions struct {
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

func NewOutboxRelay(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, opts RelayOptions) *OutboxRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	return &OutboxRelay{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		claimTTL:   opts.ClaimTTL,
		maxRetries: opts.MaxRetries,
	}
}

func (w *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_relay",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce relays one batch and reports how many rows were published.
func (w *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return 0, err
	}

	var published, failed, deadLettered int
	for _, rec := range records {
		now := time.Now().UTC()
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			w.markDeadLettered(ctx, rec, claimToken, "retry threshold reached before publish", now)
			continue
		}

		if err := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload); err != nil {
			failed++
			attempts := rec.RetryCount + 1
			if attempts >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "outbox event dead-lettered",
					"module", "events.outbox_relay",
					"layer", "adapter",
					"operation", "publish_event",
					"outcome", "failure",
					"outbox_id", rec.OutboxID,
					"event_type", rec.EventType,
					"retry_count", attempts,
					"error", err,
				)
				w.markDeadLettered(ctx, rec, claimToken, err.Error(), now)
				continue
			}
			w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "events.outbox_relay",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"retry_count", attempts,
				"error", err,
			)
			metrics.OutboxPublishTotal.WithLabelValues("failed").Inc()
			if markErr := w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now); markErr != nil {
				w.logMarkError(ctx, rec, markErr)
			}
			continue
		}

		published++
		metrics.OutboxPublishTotal.WithLabelValues("published").Inc()
		if err := w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now); err != nil {
			w.logMarkError(ctx, rec, err)
		}
	}

	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.outbox_relay",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return published, nil
}

func (w *OutboxRelay) markDeadLettered(ctx context.Context, rec ports.OutboxRecord, claimToken, reason string, at time.Time) {
	metrics.OutboxPublishTotal.WithLabelValues("dead_lettered").Inc()
	if err := w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, reason, at); err != nil {
		w.logMarkError(ctx, rec, err)
	}
}

func (w *OutboxRelay) logMarkError(ctx context.Context, rec ports.OutboxRecord, err error) {
	w.logger.ErrorContext(ctx, "outbox state update failed",
		"module", "events.outbox_relay",
		"layer", "adapter",
		"operation", "mark_outbox",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"error", err,
	)
}
