package contracts

import "time"

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

type ResetPasswordRequest struct {
	Username    string `json:"username"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type LocationDTO struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type CreateDeliveryRequest struct {
	Pickup        LocationDTO `json:"pickup"`
	Dropoff       LocationDTO `json:"dropoff"`
	PackageType   string      `json:"package_type"`
	WeightKg      float64     `json:"weight_kg"`
	Amount        int64       `json:"amount"`
	ScheduledTime *time.Time  `json:"scheduled_time,omitempty"`
}

type AdvanceDeliveryRequest struct {
	Status string   `json:"status"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
}

type OpenOrderRequest struct {
	DeliveryID string `json:"delivery_id"`
	Amount     int64  `json:"amount"`
}

type ConfirmPaymentRequest struct {
	ExternalOrderID   string `json:"order_id"`
	ExternalPaymentID string `json:"payment_id"`
	Signature         string `json:"signature"`
}
