package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

type deliveryRepository struct {
	db *gorm.DB
}

func (r *deliveryRepository) Create(ctx context.Context, d domain.Delivery, tracking domain.TrackingPoint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toDeliveryModel(d)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: delivery already exists", domain.ErrConflict)
			}
			return err
		}
		tracking.DeliveryID = d.ID
		return appendTracking(tx, tracking)
	})
}

func (r *deliveryRepository) GetByID(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return loadDelivery(r.db.WithContext(ctx), deliveryID)
}

func (r *deliveryRepository) List(ctx context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error) {
	q := r.db.WithContext(ctx).Model(&deliveryModel{})
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.PorterID != "" {
		q = q.Where("porter_id = ?", filter.PorterID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []deliveryModel
	if err := q.Order("created_at DESC, delivery_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ClaimPending is a single conditional UPDATE; Postgres row locking decides the
// winner when porters race.
func (r *deliveryRepository) ClaimPending(ctx context.Context, params ports.ClaimParams) (domain.Delivery, error) {
	var claimed domain.Delivery
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&deliveryModel{}).
			Where("delivery_id = ?", params.DeliveryID).
			Where("status = ? AND porter_id IS NULL", domain.DeliveryStatusPending).
			Updates(map[string]any{
				"status":     domain.DeliveryStatusAccepted,
				"porter_id":  params.PorterID,
				"updated_at": params.ClaimedAt,
				"version":    gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			current, err := loadDelivery(tx, params.DeliveryID)
			if err != nil {
				return err
			}
			if current.Status == domain.DeliveryStatusCancelled {
				return fmt.Errorf("%w: delivery is cancelled", domain.ErrInvalidState)
			}
			return domain.ErrAlreadyClaimed
		}
		tracking := params.Tracking
		tracking.DeliveryID = params.DeliveryID
		if err := appendTracking(tx, tracking); err != nil {
			return err
		}
		var err error
		claimed, err = loadDelivery(tx, params.DeliveryID)
		return err
	})
	if err != nil {
		return domain.Delivery{}, err
	}
	return claimed, nil
}

// CompareAndSwap writes the transport fields only. payment_status belongs to
// the payment writers, which leave version untouched.
func (r *deliveryRepository) CompareAndSwap(ctx context.Context, next domain.Delivery, expectedVersion int64, tracking *domain.TrackingPoint) (domain.Delivery, error) {
	var stored domain.Delivery
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toDeliveryModel(next)
		res := tx.Model(&deliveryModel{}).
			Where("delivery_id = ? AND version = ?", next.ID, expectedVersion).
			Updates(map[string]any{
				"porter_id":      row.PorterID,
				"status":         row.Status,
				"scheduled_time": row.ScheduledTime,
				"updated_at":     row.UpdatedAt,
				"version":        expectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := loadDelivery(tx, next.ID); err != nil {
				return err
			}
			return fmt.Errorf("%w: delivery version changed", domain.ErrConflict)
		}
		if tracking != nil {
			point := *tracking
			point.DeliveryID = next.ID
			if err := appendTracking(tx, point); err != nil {
				return err
			}
		}
		var err error
		stored, err = loadDelivery(tx, next.ID)
		return err
	})
	if err != nil {
		return domain.Delivery{}, err
	}
	return stored, nil
}

func (r *deliveryRepository) MarkPaymentFailed(ctx context.Context, deliveryID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&deliveryModel{}).
		Where("delivery_id = ? AND payment_status <> ?", deliveryID, domain.PaymentStatusCompleted).
		Updates(map[string]any{
			"payment_status": domain.PaymentStatusFailed,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		_, err := loadDelivery(r.db.WithContext(ctx), deliveryID)
		return err
	}
	return nil
}

func (r *deliveryRepository) DeleteCancelled(ctx context.Context, deliveryID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadDelivery(tx, deliveryID)
		if err != nil {
			return err
		}
		if current.Status != domain.DeliveryStatusCancelled {
			return fmt.Errorf("%w: only cancelled deliveries can be deleted", domain.ErrInvalidState)
		}
		if err := tx.Where("delivery_id = ?", deliveryID).Delete(&trackingPointModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("delivery_id = ?", deliveryID).Delete(&paymentModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("delivery_id = ? AND status = ?", deliveryID, domain.DeliveryStatusCancelled).Delete(&deliveryModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *deliveryRepository) ListTracking(ctx context.Context, deliveryID string) ([]domain.TrackingPoint, error) {
	if _, err := loadDelivery(r.db.WithContext(ctx), deliveryID); err != nil {
		return nil, err
	}
	var rows []trackingPointModel
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TrackingPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func loadDelivery(db *gorm.DB, deliveryID string) (domain.Delivery, error) {
	var row deliveryModel
	if err := db.Where("delivery_id = ?", deliveryID).First(&row).Error; err != nil {
		return domain.Delivery{}, notFoundOr(err)
	}
	return row.toDomain(), nil
}

// appendTracking assigns the next sequence under the caller's transaction. The
// delivery row is already locked by the preceding UPDATE.
func appendTracking(tx *gorm.DB, point domain.TrackingPoint) error {
	var next int64
	if err := tx.Model(&trackingPointModel{}).
		Select("COALESCE(MAX(sequence), 0) + 1").
		Where("delivery_id = ?", point.DeliveryID).
		Scan(&next).Error; err != nil {
		return err
	}
	point.Sequence = next
	row := toTrackingModel(point)
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Join(domain.ErrConflict, err)
		}
		return err
	}
	return nil
}
