package application

import (
	"time"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

type Config struct {
	ServiceName          string
	OTPLength            int
	OTPTTL               time.Duration
	TokenTTL             time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	Currency             string
	ScheduleLead         time.Duration
	ListLimit            int
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	SubjectID string
	Role      string
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

type RegisterResult struct {
	PrincipalID string `json:"principal_id"`
	RequiresOTP bool   `json:"requires_otp"`
}

type LoginResult struct {
	RequiresOTP bool   `json:"requires_otp"`
	Message     string `json:"message,omitempty"`
}

type SessionResult struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	PrincipalID string    `json:"principal_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

type CreateDeliveryInput struct {
	Pickup        domain.Location
	Dropoff       domain.Location
	PackageType   string
	WeightKg      float64
	Amount        int64
	ScheduledTime *time.Time
}

type AdvanceInput struct {
	DeliveryID   string
	TargetStatus string
	Lat          *float64
	Lon          *float64
}

// PaymentHandle is what a client needs to start the gateway checkout.
type PaymentHandle struct {
	PaymentID       string `json:"payment_id"`
	DeliveryID      string `json:"delivery_id"`
	ExternalOrderID string `json:"order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Receipt         string `json:"receipt"`
	CheckoutKey     string `json:"key_id,omitempty"`
}

type ConfirmInput struct {
	ExternalOrderID   string
	ExternalPaymentID string
	Signature         string
}

type ConfirmResult struct {
	PaymentID     string `json:"payment_id"`
	DeliveryID    string `json:"delivery_id"`
	PaymentStatus string `json:"payment_status"`
	// Replayed is set when the payment was already completed by an earlier confirm.
	Replayed bool `json:"replayed"`
}
