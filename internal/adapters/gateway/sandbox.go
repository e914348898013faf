package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

// Sandbox mints order ids locally and verifies signatures with a local secret.
// Used for development and tests; no network calls are made.
type Sandbox struct {
	keyID  string
	secret string
}

func NewSandbox(keyID, secret string) *Sandbox {
	if keyID == "" {
		keyID = "sandbox"
	}
	return &Sandbox{keyID: keyID, secret: secret}
}

func (s *Sandbox) OpenOrder(ctx context.Context, req ports.GatewayOrderRequest) (ports.GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return ports.GatewayOrder{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if req.Amount <= 0 {
		return ports.GatewayOrder{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if len(req.Receipt) > domain.MaxReceiptLength {
		return ports.GatewayOrder{}, fmt.Errorf("%w: receipt longer than %d characters", domain.ErrValidation, domain.MaxReceiptLength)
	}
	return ports.GatewayOrder{
		ExternalOrderID: "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Amount:          req.Amount,
		Currency:        req.Currency,
		CheckoutKey:     s.keyID,
	}, nil
}

func (s *Sandbox) VerifySignature(payload, signature string) (bool, error) {
	return verify(s.secret, payload, signature)
}

// SignConfirmation produces the signature a real checkout would return for the pair.
func (s *Sandbox) SignConfirmation(externalOrderID, externalPaymentID string) string {
	return Sign(s.secret, domain.SignaturePayload(externalOrderID, externalPaymentID))
}
