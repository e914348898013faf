package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r *paymentRepository) Open(ctx context.Context, p domain.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadDelivery(tx, p.DeliveryID); err != nil {
			return err
		}
		row := toPaymentModel(p)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: external order already recorded", domain.ErrConflict)
			}
			return err
		}
		return tx.Model(&deliveryModel{}).
			Where("delivery_id = ? AND payment_status = ?", p.DeliveryID, domain.PaymentStatusFailed).
			Updates(map[string]any{
				"payment_status": domain.PaymentStatusPending,
				"updated_at":     p.CreatedAt,
			}).Error
	})
}

func (r *paymentRepository) GetByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var row paymentModel
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&row).Error; err != nil {
		return domain.Payment{}, notFoundOr(err)
	}
	return row.toDomain(), nil
}

func (r *paymentRepository) GetByExternalOrderID(ctx context.Context, externalOrderID string) (domain.Payment, error) {
	var row paymentModel
	if err := r.db.WithContext(ctx).Where("external_order_id = ?", externalOrderID).First(&row).Error; err != nil {
		return domain.Payment{}, notFoundOr(err)
	}
	return row.toDomain(), nil
}

func (r *paymentRepository) ListByDelivery(ctx context.Context, deliveryID string) ([]domain.Payment, error) {
	var rows []paymentModel
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Settle flips the payment and the delivery inside one transaction. Returning an
// error from the closure rolls back both writes.
func (r *paymentRepository) Settle(ctx context.Context, s domain.Settlement) (domain.Payment, domain.Delivery, error) {
	var (
		payment  domain.Payment
		delivery domain.Delivery
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&paymentModel{}).
			Where("payment_id = ? AND status = ?", s.PaymentID, domain.PaymentStatusPending).
			Updates(map[string]any{
				"status":              domain.PaymentStatusCompleted,
				"external_payment_id": s.ExternalPaymentID,
				"updated_at":          s.SettledAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing paymentModel
			if err := tx.Where("payment_id = ?", s.PaymentID).First(&existing).Error; err != nil {
				return notFoundOr(err)
			}
			return domain.ErrAlreadySettled
		}

		res = tx.Model(&deliveryModel{}).
			Where("delivery_id = ?", s.DeliveryID).
			Updates(map[string]any{
				"payment_status": domain.PaymentStatusCompleted,
				"updated_at":     s.SettledAt,
			})
		if res.Error != nil {
			return fmt.Errorf("settle delivery %s: %w", s.DeliveryID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("settle delivery %s: %w", s.DeliveryID, domain.ErrNotFound)
		}

		var row paymentModel
		if err := tx.Where("payment_id = ?", s.PaymentID).First(&row).Error; err != nil {
			return err
		}
		payment = row.toDomain()
		var err error
		delivery, err = loadDelivery(tx, s.DeliveryID)
		return err
	})
	if err != nil {
		return domain.Payment{}, domain.Delivery{}, err
	}
	return payment, delivery, nil
}
