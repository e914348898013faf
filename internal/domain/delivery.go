package domain

import "time"

const (
	DeliveryStatusPending   = "PENDING"
	DeliveryStatusAccepted  = "ACCEPTED"
	DeliveryStatusPickedUp  = "PICKED_UP"
	DeliveryStatusInTransit = "IN_TRANSIT"
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusCancelled = "CANCELLED"
)

// DefaultScheduleLead is applied when a delivery is created without a scheduled time.
const DefaultScheduleLead = 2 * time.Hour

type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type Delivery struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	PorterID      string    `json:"porter_id,omitempty"`
	Pickup        Location  `json:"pickup"`
	Dropoff       Location  `json:"dropoff"`
	PackageType   string    `json:"package_type"`
	WeightKg      float64   `json:"weight_kg"`
	Amount        int64     `json:"amount"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	// Version counts transport changes. Payment state changes leave it alone.
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TrackingPoint is an append-only audit entry written on every lifecycle change.
type TrackingPoint struct {
	ID         string    `json:"id"`
	DeliveryID string    `json:"delivery_id"`
	Sequence   int64     `json:"sequence"`
	Status     string    `json:"status"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

var transportChain = map[string]string{
	DeliveryStatusAccepted:  DeliveryStatusPickedUp,
	DeliveryStatusPickedUp:  DeliveryStatusInTransit,
	DeliveryStatusInTransit: DeliveryStatusDelivered,
}

// NextTransportStatus returns the only status a porter may move the delivery to.
func NextTransportStatus(current string) (string, bool) {
	next, ok := transportChain[current]
	return next, ok
}

func IsValidDeliveryStatus(status string) bool {
	switch status {
	case DeliveryStatusPending, DeliveryStatusAccepted, DeliveryStatusPickedUp,
		DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	default:
		return false
	}
}

func IsTerminalDeliveryStatus(status string) bool {
	return status == DeliveryStatusDelivered || status == DeliveryStatusCancelled
}

// ActiveDeliveryStatuses are the states in which a porter is carrying the package.
func ActiveDeliveryStatuses() []string {
	return []string{DeliveryStatusAccepted, DeliveryStatusPickedUp, DeliveryStatusInTransit}
}

func HistoryDeliveryStatuses() []string {
	return []string{DeliveryStatusDelivered, DeliveryStatusCancelled}
}

// OnTime compares the last update against the scheduled time.
func (d Delivery) OnTime() bool {
	return !d.UpdatedAt.After(d.ScheduledTime)
}

// DeliveryFilter drives the list queries. Empty fields do not filter.
type DeliveryFilter struct {
	CustomerID string
	PorterID   string
	Statuses   []string
	Limit      int
}
