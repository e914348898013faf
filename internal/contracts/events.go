package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartitionKey  string          `json:"partition_key"`
	SourceService string          `json:"source_service"`
	TraceID       string          `json:"trace_id,omitempty"`
	SchemaVersion string          `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// BroadcastMessage is the payload pushed on every broadcast topic.
type BroadcastMessage struct {
	Type          string    `json:"type"`
	DeliveryID    string    `json:"delivery_id,omitempty"`
	PrincipalID   string    `json:"principal_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	PorterID      string    `json:"porter_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type DeliveryEventPayload struct {
	DeliveryID     string `json:"delivery_id"`
	CustomerID     string `json:"customer_id"`
	PorterID       string `json:"porter_id,omitempty"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	Amount         int64  `json:"amount"`
	OnTime         *bool  `json:"on_time,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

type PaymentEventPayload struct {
	PaymentID         string `json:"payment_id"`
	DeliveryID        string `json:"delivery_id"`
	ExternalOrderID   string `json:"external_order_id"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	OccurredAt        string `json:"occurred_at"`
}

type PrincipalEventPayload struct {
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ActorID     string `json:"actor_id"`
	OccurredAt  string `json:"occurred_at"`
}
