package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/viralforge/porter-dispatch/internal/contracts"
	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/metrics"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

// enqueueEvent stores a domain event for the outbox worker. A failed enqueue is
// logged; the state change it describes has already been committed.
func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, data any, now time.Time) {
	if s.outbox == nil {
		return
	}
	if err := s.writeOutbox(ctx, eventType, partitionKey, data, now); err != nil {
		appLogger().ErrorContext(ctx, "outbox enqueue failed",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"partition_key", partitionKey,
			"error", err,
		)
	}
}

func (s *Service) writeOutbox(ctx context.Context, eventType, partitionKey string, data any, now time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	eventID := uuid.New()
	envelope := contracts.EventEnvelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		OccurredAt:    now,
		PartitionKey:  partitionKey,
		SourceService: s.cfg.ServiceName,
		SchemaVersion: "v1",
		Data:          raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		OccurredAt:   now,
	})
}

// broadcast pushes msg on every topic. Listeners are best-effort.
func (s *Service) broadcast(ctx context.Context, msg contracts.BroadcastMessage, topics ...string) {
	if s.broadcaster == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, topic := range topics {
		if err := s.broadcaster.Publish(ctx, topic, payload); err != nil {
			metrics.BroadcastFailuresTotal.Inc()
			appLogger().WarnContext(ctx, "broadcast publish failed",
				"operation", "broadcast",
				"outcome", "failure",
				"topic", topic,
				"message_type", msg.Type,
				"error", err,
			)
		}
	}
}

func (s *Service) broadcastDelivery(ctx context.Context, eventType string, d domain.Delivery, topics ...string) {
	msg := contracts.BroadcastMessage{
		Type:          eventType,
		DeliveryID:    d.ID,
		Status:        d.Status,
		PaymentStatus: d.PaymentStatus,
		PorterID:      d.PorterID,
		OccurredAt:    d.UpdatedAt,
	}
	topics = append(topics, domain.TopicDeliveries, domain.TopicAdmin, domain.UserTopic(d.CustomerID))
	s.broadcast(ctx, msg, topics...)
}

// notifyPrincipal sends a message to the principal's email, if known. Errors stop here.
func (s *Service) notifyPrincipal(ctx context.Context, principalID, subject, body string) {
	if s.notifier == nil || principalID == "" {
		return
	}
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil || p.Email == "" {
		return
	}
	if err := s.notifier.Notify(ctx, p.Email, subject, body); err != nil {
		appLogger().WarnContext(ctx, "notification dispatch failed",
			"operation", "notify",
			"outcome", "failure",
			"principal_id", principalID,
			"error", err,
		)
	}
}

func deliveryPayload(d domain.Delivery, previous string) contracts.DeliveryEventPayload {
	return contracts.DeliveryEventPayload{
		DeliveryID:     d.ID,
		CustomerID:     d.CustomerID,
		PorterID:       d.PorterID,
		Status:         d.Status,
		PreviousStatus: previous,
		PaymentStatus:  d.PaymentStatus,
		Amount:         d.Amount,
		OccurredAt:     d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func paymentPayload(p domain.Payment, reason string, now time.Time) contracts.PaymentEventPayload {
	return contracts.PaymentEventPayload{
		PaymentID:         p.ID,
		DeliveryID:        p.DeliveryID,
		ExternalOrderID:   p.ExternalOrderID,
		ExternalPaymentID: p.ExternalPaymentID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            p.Status,
		Reason:            reason,
		OccurredAt:        now.UTC().Format(time.RFC3339),
	}
}
