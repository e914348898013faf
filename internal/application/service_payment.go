package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/viralforge/porter-dispatch/internal/contracts"
	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/metrics"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

// OpenOrder creates a gateway order and a PENDING payment for the delivery.
// Amount is in minor currency units.
func (s *Service) OpenOrder(ctx context.Context, actor Actor, deliveryID string, amount int64) (PaymentHandle, error) {
	if actor.SubjectID == "" {
		return PaymentHandle{}, domain.ErrUnauthorized
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return PaymentHandle{}, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return PaymentHandle{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	d, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return PaymentHandle{}, err
	}
	if !actor.IsAdmin() && d.CustomerID != actor.SubjectID {
		return PaymentHandle{}, fmt.Errorf("%w: delivery belongs to another customer", domain.ErrAccessDenied)
	}
	if d.Status == domain.DeliveryStatusCancelled {
		return PaymentHandle{}, fmt.Errorf("%w: delivery is cancelled", domain.ErrInvalidState)
	}
	if d.PaymentStatus == domain.PaymentStatusCompleted {
		return PaymentHandle{}, fmt.Errorf("%w: delivery is already paid", domain.ErrInvalidState)
	}

	receipt := domain.ReceiptForDelivery(d.ID)
	order, err := s.gateway.OpenOrder(ctx, ports.GatewayOrderRequest{
		Amount:   amount,
		Currency: s.cfg.Currency,
		Receipt:  receipt,
	})
	if err != nil {
		appLogger().ErrorContext(ctx, "gateway order creation failed",
			"operation", "open_order",
			"outcome", "failure",
			"delivery_id", d.ID,
			"error", err,
		)
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			return PaymentHandle{}, err
		}
		return PaymentHandle{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	now := s.nowFn()
	p := domain.Payment{
		ID:              uuid.NewString(),
		DeliveryID:      d.ID,
		ExternalOrderID: order.ExternalOrderID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Status:          domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.payments.Open(ctx, p); err != nil {
		return PaymentHandle{}, err
	}

	s.enqueueEvent(ctx, domain.EventPaymentOrderOpened, d.ID, paymentPayload(p, "", now), now)
	return PaymentHandle{
		PaymentID:       p.ID,
		DeliveryID:      d.ID,
		ExternalOrderID: p.ExternalOrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Receipt:         receipt,
		CheckoutKey:     order.CheckoutKey,
	}, nil
}

// ConfirmPayment reconciles a gateway confirmation. The signature is checked
// before anything is read, so a forged confirmation changes nothing. Once the
// payment is known, a failure marks the delivery payment FAILED before the error
// is returned. A confirmation for an already completed payment is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, in ConfirmInput) (out ConfirmResult, err error) {
	ctx, span := tracer.Start(ctx, "payment.confirm")
	span.SetAttributes(attribute.String("payment.external_order_id", in.ExternalOrderID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	in.ExternalOrderID = strings.TrimSpace(in.ExternalOrderID)
	in.ExternalPaymentID = strings.TrimSpace(in.ExternalPaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if in.ExternalOrderID == "" || in.ExternalPaymentID == "" || in.Signature == "" {
		return ConfirmResult{}, fmt.Errorf("%w: order id, payment id and signature are required", domain.ErrValidation)
	}

	valid, err := s.gateway.VerifySignature(domain.SignaturePayload(in.ExternalOrderID, in.ExternalPaymentID), in.Signature)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("%w: verify signature: %v", domain.ErrUpstreamUnavailable, err)
	}
	if !valid {
		appLogger().WarnContext(ctx, "payment signature rejected",
			"operation", "confirm_payment",
			"outcome", "failure",
			"external_order_id", in.ExternalOrderID,
		)
		metrics.PaymentConfirmationsTotal.WithLabelValues("rejected").Inc()
		return ConfirmResult{}, domain.ErrSignatureInvalid
	}

	payment, err := s.payments.GetByExternalOrderID(ctx, in.ExternalOrderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	switch payment.Status {
	case domain.PaymentStatusCompleted:
		metrics.PaymentConfirmationsTotal.WithLabelValues("replayed").Inc()
		return replayResult(payment), nil
	case domain.PaymentStatusFailed:
		return ConfirmResult{}, fmt.Errorf("%w: payment attempt already failed", domain.ErrInvalidState)
	}

	now := s.nowFn()
	settledPayment, settledDelivery, err := s.payments.Settle(ctx, domain.Settlement{
		PaymentID:         payment.ID,
		DeliveryID:        payment.DeliveryID,
		ExternalPaymentID: in.ExternalPaymentID,
		SettledAt:         now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			// A concurrent confirm for the same order won the settlement.
			metrics.PaymentConfirmationsTotal.WithLabelValues("replayed").Inc()
			return replayResult(payment), nil
		}
		metrics.PaymentConfirmationsTotal.WithLabelValues("compensated").Inc()
		s.compensateFailedPayment(ctx, payment, err)
		return ConfirmResult{}, err
	}
	metrics.PaymentConfirmationsTotal.WithLabelValues("completed").Inc()

	s.enqueueEvent(ctx, domain.EventPaymentCompleted, settledDelivery.ID, paymentPayload(settledPayment, "", now), now)
	s.broadcastDelivery(ctx, domain.EventPaymentCompleted, settledDelivery)
	s.notifyPrincipal(ctx, settledDelivery.CustomerID, "Payment received",
		fmt.Sprintf("We received %s for delivery %s. Thank you.", formatAmount(settledPayment.Amount, settledPayment.Currency), settledDelivery.ID))
	return ConfirmResult{
		PaymentID:     settledPayment.ID,
		DeliveryID:    settledDelivery.ID,
		PaymentStatus: settledPayment.Status,
	}, nil
}

// compensateFailedPayment marks the delivery payment FAILED. It is best-effort;
// the caller still sees the settlement error.
func (s *Service) compensateFailedPayment(ctx context.Context, payment domain.Payment, cause error) {
	now := s.nowFn()
	if err := s.deliveries.MarkPaymentFailed(ctx, payment.DeliveryID, now); err != nil {
		appLogger().ErrorContext(ctx, "payment compensation failed",
			"operation", "confirm_payment",
			"outcome", "failure",
			"payment_id", payment.ID,
			"delivery_id", payment.DeliveryID,
			"cause", cause,
			"error", err,
		)
		return
	}
	appLogger().WarnContext(ctx, "delivery payment marked failed",
		"operation", "confirm_payment",
		"outcome", "compensated",
		"payment_id", payment.ID,
		"delivery_id", payment.DeliveryID,
		"cause", cause,
	)
	failed := payment
	failed.Status = domain.PaymentStatusFailed
	s.enqueueEvent(ctx, domain.EventPaymentFailed, payment.DeliveryID, paymentPayload(failed, cause.Error(), now), now)
	s.broadcast(ctx, contracts.BroadcastMessage{
		Type:          domain.EventPaymentFailed,
		DeliveryID:    payment.DeliveryID,
		PaymentStatus: domain.PaymentStatusFailed,
		OccurredAt:    now,
	}, domain.TopicAdmin)
}

func (s *Service) ListPayments(ctx context.Context, actor Actor, deliveryID string) ([]domain.Payment, error) {
	if _, err := s.GetDelivery(ctx, actor, deliveryID); err != nil {
		return nil, err
	}
	return s.payments.ListByDelivery(ctx, deliveryID)
}

func replayResult(p domain.Payment) ConfirmResult {
	return ConfirmResult{
		PaymentID:     p.ID,
		DeliveryID:    p.DeliveryID,
		PaymentStatus: domain.PaymentStatusCompleted,
		Replayed:      true,
	}
}
