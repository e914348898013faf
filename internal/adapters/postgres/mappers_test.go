package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

func TestDeliveryModelKeepsUnassignedPorterNull(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lat := 12.97
	d := domain.Delivery{
		ID: "d1", CustomerID: "c1",
		Pickup:  domain.Location{Address: "12 MG Road", Lat: &lat},
		Dropoff: domain.Location{Address: "44 Residency Road"},
		Amount:  25000, Status: domain.DeliveryStatusPending, PaymentStatus: domain.PaymentStatusPending,
		Version: 3, ScheduledTime: now, CreatedAt: now, UpdatedAt: now,
	}
	m := toDeliveryModel(d)
	if m.PorterID != nil {
		t.Fatalf("unassigned porter must map to NULL")
	}
	back := m.toDomain()
	if back.PorterID != "" || back.Version != 3 || *back.Pickup.Lat != lat || back.Dropoff.Lat != nil {
		t.Fatalf("unexpected round trip %+v", back)
	}

	d.PorterID = "p1"
	if got := toDeliveryModel(d).toDomain().PorterID; got != "p1" {
		t.Fatalf("expected porter p1, got %q", got)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	if !errors.Is(notFoundOr(gorm.ErrRecordNotFound), domain.ErrNotFound) {
		t.Fatalf("record not found should map to ErrNotFound")
	}
	other := errors.New("connection reset")
	if notFoundOr(other) != other {
		t.Fatalf("other errors must pass through")
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("expected duplicated key to be a unique violation")
	}
	if !isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "uq_principals_username"`)) {
		t.Fatalf("expected driver message to be a unique violation")
	}
	if isUniqueViolation(nil) || isUniqueViolation(other) {
		t.Fatalf("unexpected unique violation")
	}
}
