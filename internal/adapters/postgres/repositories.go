package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

type Repositories struct {
	Principals ports.PrincipalRepository
	Deliveries ports.DeliveryRepository
	Payments   ports.PaymentRepository
	Outbox     ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Principals: &principalRepository{db: db},
		Deliveries: &deliveryRepository{db: db},
		Payments:   &paymentRepository{db: db},
		Outbox:     &outboxRepository{db: db},
	}
}

type principalRepository struct {
	db *gorm.DB
}

func (r *principalRepository) Create(ctx context.Context, p domain.Principal) error {
	row := toPrincipalModel(p)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already taken", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *principalRepository) GetByID(ctx context.Context, principalID string) (domain.Principal, error) {
	var row principalModel
	if err := r.db.WithContext(ctx).Where("principal_id = ?", principalID).First(&row).Error; err != nil {
		return domain.Principal{}, notFoundOr(err)
	}
	return row.toDomain(), nil
}

func (r *principalRepository) GetByUsername(ctx context.Context, username string) (domain.Principal, error) {
	var row principalModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return domain.Principal{}, notFoundOr(err)
	}
	return row.toDomain(), nil
}

func (r *principalRepository) Update(ctx context.Context, p domain.Principal) error {
	res := r.db.WithContext(ctx).
		Model(&principalModel{}).
		Where("principal_id = ? AND username = ?", p.ID, p.Username).
		Updates(map[string]any{
			"email":         p.Email,
			"password_hash": p.PasswordHash,
			"role":          p.Role,
			"verified":      p.Verified,
			"blocked":       p.Blocked,
			"approved":      p.Approved,
			"updated_at":    p.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
