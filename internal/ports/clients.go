package ports

import "context"

type GatewayOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

type GatewayOrder struct {
	ExternalOrderID string
	Amount          int64
	Currency        string
	// CheckoutKey is the public key id the client checkout widget needs.
	CheckoutKey string
}

// PaymentGateway is the third-party checkout provider. The shared secret used
// for signatures stays inside the adapter.
type PaymentGateway interface {
	OpenOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error)
	VerifySignature(payload, signature string) (bool, error)
}
