package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

func toPrincipalModel(p domain.Principal) principalModel {
	return principalModel{
		PrincipalID:  p.ID,
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		Verified:     p.Verified,
		Blocked:      p.Blocked,
		Approved:     p.Approved,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (m principalModel) toDomain() domain.Principal {
	return domain.Principal{
		ID:           m.PrincipalID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		Verified:     m.Verified,
		Blocked:      m.Blocked,
		Approved:     m.Approved,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func toDeliveryModel(d domain.Delivery) deliveryModel {
	m := deliveryModel{
		DeliveryID:     d.ID,
		CustomerID:     d.CustomerID,
		PickupAddress:  d.Pickup.Address,
		PickupLat:      d.Pickup.Lat,
		PickupLon:      d.Pickup.Lon,
		DropoffAddress: d.Dropoff.Address,
		DropoffLat:     d.Dropoff.Lat,
		DropoffLon:     d.Dropoff.Lon,
		PackageType:    d.PackageType,
		WeightKg:       d.WeightKg,
		Amount:         d.Amount,
		ScheduledTime:  d.ScheduledTime,
		Status:         d.Status,
		PaymentStatus:  d.PaymentStatus,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.PorterID != "" {
		porter := d.PorterID
		m.PorterID = &porter
	}
	return m
}

func (m deliveryModel) toDomain() domain.Delivery {
	d := domain.Delivery{
		ID:            m.DeliveryID,
		CustomerID:    m.CustomerID,
		Pickup:        domain.Location{Address: m.PickupAddress, Lat: m.PickupLat, Lon: m.PickupLon},
		Dropoff:       domain.Location{Address: m.DropoffAddress, Lat: m.DropoffLat, Lon: m.DropoffLon},
		PackageType:   m.PackageType,
		WeightKg:      m.WeightKg,
		Amount:        m.Amount,
		ScheduledTime: m.ScheduledTime.UTC(),
		Status:        m.Status,
		PaymentStatus: m.PaymentStatus,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.PorterID != nil {
		d.PorterID = *m.PorterID
	}
	return d
}

func toTrackingModel(p domain.TrackingPoint) trackingPointModel {
	return trackingPointModel{
		TrackingID: p.ID,
		DeliveryID: p.DeliveryID,
		Sequence:   p.Sequence,
		Status:     p.Status,
		Lat:        p.Lat,
		Lon:        p.Lon,
		RecordedAt: p.RecordedAt,
	}
}

func (m trackingPointModel) toDomain() domain.TrackingPoint {
	return domain.TrackingPoint{
		ID:         m.TrackingID,
		DeliveryID: m.DeliveryID,
		Sequence:   m.Sequence,
		Status:     m.Status,
		Lat:        m.Lat,
		Lon:        m.Lon,
		RecordedAt: m.RecordedAt.UTC(),
	}
}

func toPaymentModel(p domain.Payment) paymentModel {
	m := paymentModel{
		PaymentID:       p.ID,
		DeliveryID:      p.DeliveryID,
		ExternalOrderID: p.ExternalOrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.ExternalPaymentID != "" {
		ext := p.ExternalPaymentID
		m.ExternalPaymentID = &ext
	}
	return m
}

func (m paymentModel) toDomain() domain.Payment {
	p := domain.Payment{
		ID:              m.PaymentID,
		DeliveryID:      m.DeliveryID,
		ExternalOrderID: m.ExternalOrderID,
		Amount:          m.Amount,
		Currency:        m.Currency,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	if m.ExternalPaymentID != nil {
		p.ExternalPaymentID = *m.ExternalPaymentID
	}
	return p
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
