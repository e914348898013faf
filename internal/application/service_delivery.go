package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/metrics"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

func (s *Service) CreateDelivery(ctx context.Context, actor Actor, in CreateDeliveryInput) (domain.Delivery, error) {
	if actor.SubjectID == "" {
		return domain.Delivery{}, domain.ErrUnauthorized
	}
	if actor.Role != domain.RoleCustomer {
		return domain.Delivery{}, fmt.Errorf("%w: only customers create deliveries", domain.ErrAccessDenied)
	}
	in.Pickup.Address = strings.TrimSpace(in.Pickup.Address)
	in.Dropoff.Address = strings.TrimSpace(in.Dropoff.Address)
	in.PackageType = strings.TrimSpace(in.PackageType)
	switch {
	case in.Pickup.Address == "":
		return domain.Delivery{}, fmt.Errorf("%w: pickup address is required", domain.ErrValidation)
	case in.Dropoff.Address == "":
		return domain.Delivery{}, fmt.Errorf("%w: dropoff address is required", domain.ErrValidation)
	case in.PackageType == "":
		return domain.Delivery{}, fmt.Errorf("%w: package type is required", domain.ErrValidation)
	case in.WeightKg <= 0:
		return domain.Delivery{}, fmt.Errorf("%w: weight must be positive", domain.ErrValidation)
	case in.Amount <= 0:
		return domain.Delivery{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	now := s.nowFn()
	scheduled := now.Add(s.cfg.ScheduleLead)
	if in.ScheduledTime != nil && !in.ScheduledTime.IsZero() {
		scheduled = in.ScheduledTime.UTC()
	}
	d := domain.Delivery{
		ID:            uuid.NewString(),
		CustomerID:    actor.SubjectID,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		PackageType:   in.PackageType,
		WeightKg:      in.WeightKg,
		Amount:        in.Amount,
		ScheduledTime: scheduled,
		Status:        domain.DeliveryStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deliveries.Create(ctx, d, s.trackingPoint(d, nil, nil)); err != nil {
		return domain.Delivery{}, err
	}

	s.enqueueEvent(ctx, domain.EventDeliveryCreated, d.ID, deliveryPayload(d, ""), now)
	s.broadcastDelivery(ctx, domain.EventDeliveryCreated, d, domain.TopicPorters)
	return d, nil
}

// ClaimDelivery assigns a pending delivery to the calling porter. Exactly one of
// any number of concurrent claims wins; the rest get domain.ErrAlreadyClaimed.
func (s *Service) ClaimDelivery(ctx context.Context, actor Actor, deliveryID string) (out domain.Delivery, err error) {
	ctx, span := tracer.Start(ctx, "delivery.claim")
	span.SetAttributes(attribute.String("delivery.id", deliveryID), attribute.String("porter.id", actor.SubjectID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.requireActivePorter(ctx, actor); err != nil {
		return domain.Delivery{}, err
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return domain.Delivery{}, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	now := s.nowFn()
	claimed, err := s.deliveries.ClaimPending(ctx, ports.ClaimParams{
		DeliveryID: deliveryID,
		PorterID:   actor.SubjectID,
		ClaimedAt:  now,
		Tracking: domain.TrackingPoint{
			ID:         uuid.NewString(),
			DeliveryID: deliveryID,
			Status:     domain.DeliveryStatusAccepted,
			RecordedAt: now,
		},
	})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyClaimed) {
			metrics.DeliveryClaimsTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.DeliveryClaimsTotal.WithLabelValues("lost").Inc()
			appLogger().InfoContext(ctx, "delivery claim lost",
				"operation", "claim_delivery",
				"outcome", "conflict",
				"delivery_id", deliveryID,
				"porter_id", actor.SubjectID,
			)
		}
		return domain.Delivery{}, err
	}
	metrics.DeliveryClaimsTotal.WithLabelValues("won").Inc()

	s.enqueueEvent(ctx, domain.EventDeliveryClaimed, claimed.ID, deliveryPayload(claimed, domain.DeliveryStatusPending), now)
	s.broadcastDelivery(ctx, domain.EventDeliveryClaimed, claimed, domain.TopicPorters)
	s.notifyPrincipal(ctx, claimed.CustomerID, "Your delivery was accepted",
		fmt.Sprintf("Delivery %s has been accepted by a porter and will be picked up soon.", claimed.ID))
	return claimed, nil
}

// AdvanceDelivery moves a claimed delivery one step along the transport chain.
func (s *Service) AdvanceDelivery(ctx context.Context, actor Actor, in AdvanceInput) (out domain.Delivery, err error) {
	ctx, span := tracer.Start(ctx, "delivery.advance")
	span.SetAttributes(attribute.String("delivery.id", in.DeliveryID), attribute.String("delivery.target_status", in.TargetStatus))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if actor.SubjectID == "" {
		return domain.Delivery{}, domain.ErrUnauthorized
	}
	target := strings.ToUpper(strings.TrimSpace(in.TargetStatus))
	if !domain.IsValidDeliveryStatus(target) {
		return domain.Delivery{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, in.TargetStatus)
	}

	current, err := s.deliveries.GetByID(ctx, in.DeliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if current.PorterID == "" || current.PorterID != actor.SubjectID {
		return domain.Delivery{}, fmt.Errorf("%w: delivery is not assigned to this porter", domain.ErrAccessDenied)
	}
	next, ok := domain.NextTransportStatus(current.Status)
	if !ok || next != target {
		return domain.Delivery{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
	}

	now := s.nowFn()
	updated := current
	updated.Status = target
	updated.UpdatedAt = now
	point := s.trackingPoint(updated, in.Lat, in.Lon)
	stored, err := s.deliveries.CompareAndSwap(ctx, updated, current.Version, &point)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Only another transport write moves the version, e.g. a duplicate advance.
			return domain.Delivery{}, fmt.Errorf("%w: delivery left %s while advancing", domain.ErrInvalidTransition, current.Status)
		}
		return domain.Delivery{}, err
	}
	metrics.DeliveryTransitionsTotal.WithLabelValues(stored.Status).Inc()

	payload := deliveryPayload(stored, current.Status)
	if stored.Status == domain.DeliveryStatusDelivered {
		onTime := stored.OnTime()
		payload.OnTime = &onTime
	}
	s.enqueueEvent(ctx, domain.EventDeliveryStatusChanged, stored.ID, payload, now)
	s.broadcastDelivery(ctx, domain.EventDeliveryStatusChanged, stored)
	s.notifyStatusChange(ctx, stored)
	return stored, nil
}

func (s *Service) notifyStatusChange(ctx context.Context, d domain.Delivery) {
	s.notifyPrincipal(ctx, d.CustomerID, "Delivery status update",
		fmt.Sprintf("Delivery %s is now %s.", d.ID, strings.ReplaceAll(strings.ToLower(d.Status), "_", " ")))
	if d.Status == domain.DeliveryStatusDelivered && d.PaymentStatus != domain.PaymentStatusCompleted {
		s.notifyPrincipal(ctx, d.CustomerID, "Payment pending for your delivery",
			fmt.Sprintf("Delivery %s was delivered. Please complete the payment of %s.", d.ID, formatAmount(d.Amount, s.cfg.Currency)))
	}
}

// CancelDelivery is allowed only for the owning customer and only while PENDING.
// Cancelling twice is rejected.
func (s *Service) CancelDelivery(ctx context.Context, actor Actor, deliveryID string) (domain.Delivery, error) {
	if actor.SubjectID == "" {
		return domain.Delivery{}, domain.ErrUnauthorized
	}
	current, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if current.CustomerID != actor.SubjectID {
		return domain.Delivery{}, fmt.Errorf("%w: delivery belongs to another customer", domain.ErrAccessDenied)
	}
	if current.Status != domain.DeliveryStatusPending {
		return domain.Delivery{}, fmt.Errorf("%w: cannot cancel a %s delivery", domain.ErrInvalidState, current.Status)
	}

	now := s.nowFn()
	updated := current
	updated.Status = domain.DeliveryStatusCancelled
	updated.UpdatedAt = now
	point := s.trackingPoint(updated, nil, nil)
	stored, err := s.deliveries.CompareAndSwap(ctx, updated, current.Version, &point)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A porter claimed it, or another cancel won, between the read and the swap.
			return domain.Delivery{}, fmt.Errorf("%w: delivery changed while cancelling", domain.ErrInvalidState)
		}
		return domain.Delivery{}, err
	}

	s.enqueueEvent(ctx, domain.EventDeliveryCancelled, stored.ID, deliveryPayload(stored, current.Status), now)
	s.broadcastDelivery(ctx, domain.EventDeliveryCancelled, stored, domain.TopicPorters)
	return stored, nil
}

// DeleteDelivery purges a CANCELLED delivery with its payments and tracking log.
func (s *Service) DeleteDelivery(ctx context.Context, actor Actor, deliveryID string) error {
	if actor.SubjectID == "" {
		return domain.ErrUnauthorized
	}
	current, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && current.CustomerID != actor.SubjectID {
		return fmt.Errorf("%w: delivery belongs to another customer", domain.ErrAccessDenied)
	}
	if current.Status != domain.DeliveryStatusCancelled {
		return fmt.Errorf("%w: only cancelled deliveries can be deleted", domain.ErrInvalidState)
	}
	if err := s.deliveries.DeleteCancelled(ctx, current.ID); err != nil {
		return err
	}
	now := s.nowFn()
	s.enqueueEvent(ctx, domain.EventDeliveryDeleted, current.ID, deliveryPayload(current, ""), now)
	current.UpdatedAt = now
	s.broadcastDelivery(ctx, domain.EventDeliveryDeleted, current)
	return nil
}

func (s *Service) GetDelivery(ctx context.Context, actor Actor, deliveryID string) (domain.Delivery, error) {
	d, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if !canView(actor, d) {
		return domain.Delivery{}, domain.ErrAccessDenied
	}
	return d, nil
}

func (s *Service) TrackingLog(ctx context.Context, actor Actor, deliveryID string) ([]domain.TrackingPoint, error) {
	if _, err := s.GetDelivery(ctx, actor, deliveryID); err != nil {
		return nil, err
	}
	return s.deliveries.ListTracking(ctx, deliveryID)
}

func (s *Service) ListCustomerDeliveries(ctx context.Context, actor Actor) ([]domain.Delivery, error) {
	if actor.Role != domain.RoleCustomer {
		return nil, domain.ErrAccessDenied
	}
	return s.deliveries.List(ctx, domain.DeliveryFilter{CustomerID: actor.SubjectID, Limit: s.cfg.ListLimit})
}

func (s *Service) ListAvailableDeliveries(ctx context.Context, actor Actor) ([]domain.Delivery, error) {
	if err := s.requireActivePorter(ctx, actor); err != nil {
		return nil, err
	}
	return s.deliveries.List(ctx, domain.DeliveryFilter{Statuses: []string{domain.DeliveryStatusPending}, Limit: s.cfg.ListLimit})
}

func (s *Service) ListActiveDeliveries(ctx context.Context, actor Actor) ([]domain.Delivery, error) {
	if actor.Role != domain.RolePorter {
		return nil, domain.ErrAccessDenied
	}
	return s.deliveries.List(ctx, domain.DeliveryFilter{PorterID: actor.SubjectID, Statuses: domain.ActiveDeliveryStatuses(), Limit: s.cfg.ListLimit})
}

func (s *Service) ListDeliveryHistory(ctx context.Context, actor Actor) ([]domain.Delivery, error) {
	if actor.Role != domain.RolePorter {
		return nil, domain.ErrAccessDenied
	}
	return s.deliveries.List(ctx, domain.DeliveryFilter{PorterID: actor.SubjectID, Statuses: domain.HistoryDeliveryStatuses(), Limit: s.cfg.ListLimit})
}

func (s *Service) requireActivePorter(ctx context.Context, actor Actor) error {
	if actor.SubjectID == "" {
		return domain.ErrUnauthorized
	}
	if actor.Role != domain.RolePorter {
		return fmt.Errorf("%w: porter role required", domain.ErrAccessDenied)
	}
	p, err := s.principals.GetByID(ctx, actor.SubjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	if p.Role != domain.RolePorter || p.Blocked || !p.Approved {
		return fmt.Errorf("%w: porter is not active", domain.ErrAccessDenied)
	}
	return nil
}

func (s *Service) trackingPoint(d domain.Delivery, lat, lon *float64) domain.TrackingPoint {
	return domain.TrackingPoint{
		ID:         uuid.NewString(),
		DeliveryID: d.ID,
		Status:     d.Status,
		Lat:        lat,
		Lon:        lon,
		RecordedAt: d.UpdatedAt,
	}
}

func canView(actor Actor, d domain.Delivery) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleCustomer:
		return d.CustomerID == actor.SubjectID
	case domain.RolePorter:
		return d.PorterID == actor.SubjectID || d.Status == domain.DeliveryStatusPending
	default:
		return false
	}
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}
