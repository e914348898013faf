package postgres

import (
	"time"

	"github.com/google/uuid"
)

type principalModel struct {
	PrincipalID  string    `gorm:"column:principal_id;type:uuid;primaryKey"`
	Username     string    `gorm:"column:username"`
	Email        string    `gorm:"column:email"`
	PasswordHash string    `gorm:"column:password_hash"`
	Role         string    `gorm:"column:role"`
	Verified     bool      `gorm:"column:verified"`
	Blocked      bool      `gorm:"column:blocked"`
	Approved     bool      `gorm:"column:approved"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (principalModel) TableName() string { return "principals" }

type deliveryModel struct {
	DeliveryID     string    `gorm:"column:delivery_id;type:uuid;primaryKey"`
	CustomerID     string    `gorm:"column:customer_id;type:uuid"`
	PorterID       *string   `gorm:"column:porter_id;type:uuid"`
	PickupAddress  string    `gorm:"column:pickup_address"`
	PickupLat      *float64  `gorm:"column:pickup_lat"`
	PickupLon      *float64  `gorm:"column:pickup_lon"`
	DropoffAddress string    `gorm:"column:dropoff_address"`
	DropoffLat     *float64  `gorm:"column:dropoff_lat"`
	DropoffLon     *float64  `gorm:"column:dropoff_lon"`
	PackageType    string    `gorm:"column:package_type"`
	WeightKg       float64   `gorm:"column:weight_kg"`
	Amount         int64     `gorm:"column:amount"`
	ScheduledTime  time.Time `gorm:"column:scheduled_time"`
	Status         string    `gorm:"column:status"`
	PaymentStatus  string    `gorm:"column:payment_status"`
	Version        int64     `gorm:"column:version"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (deliveryModel) TableName() string { return "deliveries" }

type trackingPointModel struct {
	TrackingID string    `gorm:"column:tracking_id;type:uuid;primaryKey"`
	DeliveryID string    `gorm:"column:delivery_id;type:uuid"`
	Sequence   int64     `gorm:"column:sequence"`
	Status     string    `gorm:"column:status"`
	Lat        *float64  `gorm:"column:lat"`
	Lon        *float64  `gorm:"column:lon"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (trackingPointModel) TableName() string { return "tracking_points" }

type paymentModel struct {
	PaymentID         string    `gorm:"column:payment_id;type:uuid;primaryKey"`
	DeliveryID        string    `gorm:"column:delivery_id;type:uuid"`
	ExternalOrderID   string    `gorm:"column:external_order_id"`
	ExternalPaymentID *string   `gorm:"column:external_payment_id"`
	Amount            int64     `gorm:"column:amount"`
	Currency          string    `gorm:"column:currency"`
	Status            string    `gorm:"column:status"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string { return "payments" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "dispatch_outbox" }
