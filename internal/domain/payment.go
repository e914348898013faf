package domain

import (
	"strings"
	"time"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Payment is one gateway order for a delivery. A retry opens a new Payment.
// Amount is in minor currency units.
type Payment struct {
	ID                string    `json:"id"`
	DeliveryID        string    `json:"delivery_id"`
	ExternalOrderID   string    `json:"external_order_id"`
	ExternalPaymentID string    `json:"external_payment_id,omitempty"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Settlement is the joint payment/delivery update applied on a confirmed charge.
type Settlement struct {
	PaymentID         string
	DeliveryID        string
	ExternalPaymentID string
	SettledAt         time.Time
}

// MaxReceiptLength is the longest receipt the gateway accepts.
const MaxReceiptLength = 40

// ReceiptForDelivery is the gateway receipt reference for a delivery order.
// Hyphens are dropped so a UUID fits within MaxReceiptLength.
func ReceiptForDelivery(deliveryID string) string {
	receipt := "order_" + strings.ReplaceAll(deliveryID, "-", "")
	if len(receipt) > MaxReceiptLength {
		receipt = receipt[:MaxReceiptLength]
	}
	return receipt
}

// SignaturePayload is the message the gateway signs on checkout completion.
func SignaturePayload(externalOrderID, externalPaymentID string) string {
	return externalOrderID + "|" + externalPaymentID
}
