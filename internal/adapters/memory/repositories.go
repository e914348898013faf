package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

// Repositories is the in-process storage used by tests and single-node runs.
type Repositories struct {
	Principals *PrincipalRepository
	Deliveries *DeliveryRepository
	Payments   *PaymentRepository
	Outbox     *OutboxRepository
}

func NewRepositories() Repositories {
	deliveries := &DeliveryRepository{records: map[string]*deliveryRecord{}}
	payments := &PaymentRepository{
		rows:       map[string]domain.Payment{},
		byOrder:    map[string]string{},
		settling:   map[string]chan struct{}{},
		deliveries: deliveries,
	}
	deliveries.payments = payments
	return Repositories{
		Principals: &PrincipalRepository{rows: map[string]domain.Principal{}, byUsername: map[string]string{}},
		Deliveries: deliveries,
		Payments:   payments,
		Outbox:     &OutboxRepository{},
	}
}

type PrincipalRepository struct {
	mu         sync.RWMutex
	rows       map[string]domain.Principal
	byUsername map[string]string
}

func (r *PrincipalRepository) Create(_ context.Context, p domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[p.Username]; ok {
		return fmt.Errorf("%w: username already taken", domain.ErrConflict)
	}
	if _, ok := r.rows[p.ID]; ok {
		return fmt.Errorf("%w: principal already exists", domain.ErrConflict)
	}
	r.rows[p.ID] = p
	r.byUsername[p.Username] = p.ID
	return nil
}

func (r *PrincipalRepository) GetByID(_ context.Context, principalID string) (domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[principalID]
	if !ok {
		return domain.Principal{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *PrincipalRepository) GetByUsername(_ context.Context, username string) (domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return domain.Principal{}, domain.ErrNotFound
	}
	return r.rows[id], nil
}

func (r *PrincipalRepository) Update(_ context.Context, p domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Username != p.Username {
		return fmt.Errorf("%w: username is immutable", domain.ErrValidation)
	}
	r.rows[p.ID] = p
	return nil
}

type deliveryRecord struct {
	mu       sync.Mutex
	delivery domain.Delivery
	tracking []domain.TrackingPoint
	deleted  bool
}

// DeliveryRepository guards every delivery with its own lock. The map lock only
// protects membership.
type DeliveryRepository struct {
	mu       sync.RWMutex
	records  map[string]*deliveryRecord
	payments *PaymentRepository
}

// lockRecord returns the live record with its lock held, or ErrNotFound.
func (r *DeliveryRepository) lockRecord(deliveryID string) (*deliveryRecord, error) {
	r.mu.RLock()
	rec, ok := r.records[deliveryID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (r *DeliveryRepository) Create(_ context.Context, d domain.Delivery, tracking domain.TrackingPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[d.ID]; ok {
		return fmt.Errorf("%w: delivery already exists", domain.ErrConflict)
	}
	tracking.Sequence = 1
	r.records[d.ID] = &deliveryRecord{delivery: d, tracking: []domain.TrackingPoint{tracking}}
	return nil
}

func (r *DeliveryRepository) GetByID(_ context.Context, deliveryID string) (domain.Delivery, error) {
	rec, err := r.lockRecord(deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	defer rec.mu.Unlock()
	return rec.delivery, nil
}

func (r *DeliveryRepository) List(_ context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error) {
	r.mu.RLock()
	records := make([]*deliveryRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	out := make([]domain.Delivery, 0)
	for _, rec := range records {
		rec.mu.Lock()
		d, deleted := rec.delivery, rec.deleted
		rec.mu.Unlock()
		if deleted || !matchesFilter(d, filter) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(d domain.Delivery, f domain.DeliveryFilter) bool {
	if f.CustomerID != "" && d.CustomerID != f.CustomerID {
		return false
	}
	if f.PorterID != "" && d.PorterID != f.PorterID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if d.Status == s {
			return true
		}
	}
	return false
}

func (r *DeliveryRepository) ClaimPending(_ context.Context, params ports.ClaimParams) (domain.Delivery, error) {
	rec, err := r.lockRecord(params.DeliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	defer rec.mu.Unlock()

	d := rec.delivery
	if d.Status == domain.DeliveryStatusCancelled {
		return domain.Delivery{}, fmt.Errorf("%w: delivery is cancelled", domain.ErrInvalidState)
	}
	if d.Status != domain.DeliveryStatusPending || d.PorterID != "" {
		return domain.Delivery{}, domain.ErrAlreadyClaimed
	}
	d.Status = domain.DeliveryStatusAccepted
	d.PorterID = params.PorterID
	d.UpdatedAt = params.ClaimedAt
	d.Version++
	rec.delivery = d
	rec.appendTracking(params.Tracking)
	return d, nil
}

func (r *DeliveryRepository) CompareAndSwap(_ context.Context, next domain.Delivery, expectedVersion int64, tracking *domain.TrackingPoint) (domain.Delivery, error) {
	rec, err := r.lockRecord(next.ID)
	if err != nil {
		return domain.Delivery{}, err
	}
	defer rec.mu.Unlock()

	if rec.delivery.Version != expectedVersion {
		return domain.Delivery{}, fmt.Errorf("%w: delivery version changed", domain.ErrConflict)
	}
	next.Version = expectedVersion + 1
	next.PaymentStatus = rec.delivery.PaymentStatus
	rec.delivery = next
	if tracking != nil {
		rec.appendTracking(*tracking)
	}
	return next, nil
}

func (r *DeliveryRepository) MarkPaymentFailed(_ context.Context, deliveryID string, at time.Time) error {
	rec, err := r.lockRecord(deliveryID)
	if err != nil {
		return err
	}
	defer rec.mu.Unlock()
	if rec.delivery.PaymentStatus == domain.PaymentStatusCompleted {
		return nil
	}
	rec.delivery.PaymentStatus = domain.PaymentStatusFailed
	rec.delivery.UpdatedAt = at
	return nil
}

func (r *DeliveryRepository) DeleteCancelled(_ context.Context, deliveryID string) error {
	rec, err := r.lockRecord(deliveryID)
	if err != nil {
		return err
	}
	defer rec.mu.Unlock()
	if rec.delivery.Status != domain.DeliveryStatusCancelled {
		return fmt.Errorf("%w: only cancelled deliveries can be deleted", domain.ErrInvalidState)
	}
	r.payments.deleteByDelivery(deliveryID)
	rec.deleted = true
	rec.tracking = nil

	r.mu.Lock()
	delete(r.records, deliveryID)
	r.mu.Unlock()
	return nil
}

func (r *DeliveryRepository) ListTracking(_ context.Context, deliveryID string) ([]domain.TrackingPoint, error) {
	rec, err := r.lockRecord(deliveryID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()
	out := make([]domain.TrackingPoint, len(rec.tracking))
	copy(out, rec.tracking)
	return out, nil
}

// setPaymentStatus is the delivery half of a settlement; the caller owns rollback.
// Payment writes leave Version alone so they never fail a transport CAS.
func (r *DeliveryRepository) setPaymentStatus(deliveryID, from, to string, at time.Time) (domain.Delivery, error) {
	rec, err := r.lockRecord(deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	defer rec.mu.Unlock()
	if from != "" && rec.delivery.PaymentStatus != from {
		return rec.delivery, nil
	}
	rec.delivery.PaymentStatus = to
	rec.delivery.UpdatedAt = at
	return rec.delivery, nil
}

func (rec *deliveryRecord) appendTracking(p domain.TrackingPoint) {
	p.Sequence = int64(len(rec.tracking)) + 1
	if p.DeliveryID == "" {
		p.DeliveryID = rec.delivery.ID
	}
	rec.tracking = append(rec.tracking, p)
}

type PaymentRepository struct {
	mu         sync.Mutex
	rows       map[string]domain.Payment
	byOrder    map[string]string
	deliveries *DeliveryRepository
	// settling holds one channel per payment whose settlement is in flight.
	// It is closed once the outcome is visible in rows.
	settling map[string]chan struct{}
	// failDeliveryWrite lets tests force the delivery half of a settlement to fail.
	failDeliveryWrite func(deliveryID string) error
}

func (r *PaymentRepository) Open(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	if _, ok := r.byOrder[p.ExternalOrderID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: external order already recorded", domain.ErrConflict)
	}
	r.rows[p.ID] = p
	r.byOrder[p.ExternalOrderID] = p.ID
	r.mu.Unlock()

	if _, err := r.deliveries.setPaymentStatus(p.DeliveryID, domain.PaymentStatusFailed, domain.PaymentStatusPending, p.CreatedAt); err != nil {
		r.mu.Lock()
		if r.byOrder[p.ExternalOrderID] == p.ID {
			delete(r.byOrder, p.ExternalOrderID)
		}
		delete(r.rows, p.ID)
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, paymentID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[paymentID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *PaymentRepository) GetByExternalOrderID(_ context.Context, externalOrderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrder[externalOrderID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return r.rows[id], nil
}

func (r *PaymentRepository) ListByDelivery(_ context.Context, deliveryID string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Payment, 0)
	for _, p := range r.rows {
		if p.DeliveryID == deliveryID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Settle writes the delivery first and publishes the COMPLETED payment only
// once that write succeeded. Concurrent settlements of one payment queue
// behind the one in flight.
func (r *PaymentRepository) Settle(ctx context.Context, s domain.Settlement) (domain.Payment, domain.Delivery, error) {
	var before domain.Payment
	for {
		r.mu.Lock()
		if wait, busy := r.settling[s.PaymentID]; busy {
			r.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return domain.Payment{}, domain.Delivery{}, ctx.Err()
			}
		}
		p, ok := r.rows[s.PaymentID]
		if !ok {
			r.mu.Unlock()
			return domain.Payment{}, domain.Delivery{}, domain.ErrNotFound
		}
		if p.Status != domain.PaymentStatusPending {
			r.mu.Unlock()
			return domain.Payment{}, domain.Delivery{}, domain.ErrAlreadySettled
		}
		before = p
		break
	}
	done := make(chan struct{})
	r.settling[s.PaymentID] = done
	failHook := r.failDeliveryWrite
	r.mu.Unlock()

	var (
		delivery domain.Delivery
		err      error
	)
	if failHook != nil {
		err = failHook(s.DeliveryID)
	}
	if err == nil {
		delivery, err = r.deliveries.setPaymentStatus(s.DeliveryID, "", domain.PaymentStatusCompleted, s.SettledAt)
	}

	r.mu.Lock()
	defer func() {
		delete(r.settling, s.PaymentID)
		close(done)
		r.mu.Unlock()
	}()
	if err != nil {
		return domain.Payment{}, domain.Delivery{}, fmt.Errorf("settle delivery %s: %w", s.DeliveryID, err)
	}
	after := before
	after.Status = domain.PaymentStatusCompleted
	after.ExternalPaymentID = s.ExternalPaymentID
	after.UpdatedAt = s.SettledAt
	if _, ok := r.rows[after.ID]; ok {
		r.rows[after.ID] = after
	}
	return after, delivery, nil
}

// FailDeliveryWrites makes the delivery half of every settlement return err.
// Passing nil restores normal behaviour.
func (r *PaymentRepository) FailDeliveryWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.failDeliveryWrite = nil
		return
	}
	r.failDeliveryWrite = func(string) error { return err }
}

func (r *PaymentRepository) deleteByDelivery(deliveryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.rows {
		if p.DeliveryID == deliveryID {
			delete(r.byOrder, p.ExternalOrderID)
			delete(r.rows, id)
		}
	}
}

// OutboxRepository is an ordered in-process outbox with the same claim semantics
// as the Postgres table.
type OutboxRepository struct {
	mu   sync.Mutex
	rows []*ports.OutboxRecord
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, &ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		CreatedAt:    event.OccurredAt,
	})
	return nil
}

func (r *OutboxRepository) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(claimToken) == "" {
		return nil, fmt.Errorf("claim token is required")
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, limit)
	for _, rec := range r.rows {
		if len(out) == limit {
			break
		}
		if rec.PublishedAt != nil || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimUntil != nil && rec.ClaimUntil.After(now) {
			continue
		}
		token, until := claimToken, claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		out = append(out, *rec)
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.PublishedAt = &at
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
	})
}

func (r *OutboxRepository) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
		rec.DeadLetteredAt = &at
	})
}

func (r *OutboxRepository) update(outboxID uuid.UUID, claimToken string, fn func(*ports.OutboxRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.rows {
		if rec.OutboxID != outboxID {
			continue
		}
		if rec.ClaimToken == nil || *rec.ClaimToken != claimToken {
			return nil
		}
		fn(rec)
		rec.ClaimToken = nil
		rec.ClaimUntil = nil
		return nil
	}
	return nil
}

// Events returns every enqueued record in insertion order.
func (r *OutboxRepository) Events() []ports.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, len(r.rows))
	for _, rec := range r.rows {
		out = append(out, *rec)
	}
	return out
}
