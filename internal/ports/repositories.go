package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

// PrincipalRepository is the identity store.
type PrincipalRepository interface {
	Create(ctx context.Context, principal domain.Principal) error
	GetByID(ctx context.Context, principalID string) (domain.Principal, error)
	GetByUsername(ctx context.Context, username string) (domain.Principal, error)
	Update(ctx context.Context, principal domain.Principal) error
}

// ClaimParams describes the single check-and-set that assigns a pending delivery.
type ClaimParams struct {
	DeliveryID string
	PorterID   string
	ClaimedAt  time.Time
	Tracking   domain.TrackingPoint
}

// DeliveryRepository owns delivery rows and their tracking log.
// Every mutation after creation is conditional on the stored version, so two
// writers holding the same snapshot can never both succeed.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery domain.Delivery, tracking domain.TrackingPoint) error
	GetByID(ctx context.Context, deliveryID string) (domain.Delivery, error)
	List(ctx context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error)
	// ClaimPending assigns the porter only if the delivery is still PENDING and
	// unassigned. A lost race returns domain.ErrAlreadyClaimed.
	ClaimPending(ctx context.Context, params ClaimParams) (domain.Delivery, error)
	// CompareAndSwap writes the transport fields of next when the stored version
	// equals expectedVersion and appends the tracking point in the same unit of
	// work. PaymentStatus is never taken from next. It returns the stored
	// delivery with its new version.
	CompareAndSwap(ctx context.Context, next domain.Delivery, expectedVersion int64, tracking *domain.TrackingPoint) (domain.Delivery, error)
	// MarkPaymentFailed is the compensating write of the reconciliation path.
	// It never downgrades a COMPLETED payment state.
	MarkPaymentFailed(ctx context.Context, deliveryID string, at time.Time) error
	// DeleteCancelled removes a CANCELLED delivery together with its payments and
	// tracking points.
	DeleteCancelled(ctx context.Context, deliveryID string) error
	ListTracking(ctx context.Context, deliveryID string) ([]domain.TrackingPoint, error)
}

// PaymentRepository owns payment rows. Settle is the only path that completes one.
type PaymentRepository interface {
	// Open stores a new PENDING payment and moves the delivery payment state back
	// to PENDING when an earlier attempt failed.
	Open(ctx context.Context, payment domain.Payment) error
	GetByID(ctx context.Context, paymentID string) (domain.Payment, error)
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (domain.Payment, error)
	ListByDelivery(ctx context.Context, deliveryID string) ([]domain.Payment, error)
	// Settle completes the payment and its delivery as one unit. The payment must
	// still be PENDING (domain.ErrAlreadySettled otherwise) and the delivery must
	// exist (domain.ErrNotFound otherwise). On any error nothing is left written.
	Settle(ctx context.Context, settlement domain.Settlement) (domain.Payment, domain.Delivery, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is durable outbox state including retry metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
