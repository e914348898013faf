package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/adapters/memory"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	published []string
}

func (p *stubPublisher) Publish(_ context.Context, eventType, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, eventType)
	return nil
}

func newRelayFixture(t *testing.T, publisher *stubPublisher, events ...string) (*OutboxRelay, *memory.OutboxRepository) {
	t.Helper()
	outbox := memory.NewRepositories().Outbox
	for _, eventType := range events {
		err := outbox.Enqueue(context.Background(), ports.OutboxEvent{
			EventID:      uuid.New(),
			EventType:    eventType,
			PartitionKey: "delivery-1",
			Payload:      []byte(`{"delivery_id":"delivery-1"}`),
			OccurredAt:   time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewOutboxRelay(logger, outbox, publisher, RelayOptions{BatchSize: 10, MaxRetries: 2})
	return relay, outbox
}

func TestRelayPublishesInOrder(t *testing.T) {
	t.Parallel()

	publisher := &stubPublisher{}
	relay, outbox := newRelayFixture(t, publisher, "delivery.created", "delivery.claimed")

	n, err := relay.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected two published events, got %d", n)
	}
	if len(publisher.published) != 2 || publisher.published[0] != "delivery.created" || publisher.published[1] != "delivery.claimed" {
		t.Fatalf("unexpected publish order %v", publisher.published)
	}
	for _, rec := range outbox.Events() {
		if rec.PublishedAt == nil || rec.ClaimToken != nil {
			t.Fatalf("expected row to be published and released, got %+v", rec)
		}
	}

	n, err = relay.ProcessOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left to publish, got %d (%v)", n, err)
	}
}

func TestRelayDeadLettersAfterRetries(t *testing.T) {
	t.Parallel()

	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	relay, outbox := newRelayFixture(t, publisher, "payment.completed")
	ctx := context.Background()

	if _, err := relay.ProcessOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	rec := outbox.Events()[0]
	if rec.RetryCount != 1 || rec.DeadLetteredAt != nil || rec.LastError == nil {
		t.Fatalf("expected one recorded failure, got %+v", rec)
	}

	if _, err := relay.ProcessOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	rec = outbox.Events()[0]
	if rec.DeadLetteredAt == nil || rec.RetryCount != 2 {
		t.Fatalf("expected row to be dead-lettered, got %+v", rec)
	}

	publisher.err = nil
	if n, _ := relay.ProcessOnce(ctx); n != 0 {
		t.Fatalf("dead-lettered rows must not be retried, published %d", n)
	}
}
