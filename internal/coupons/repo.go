package coupons

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
)

// Repository manages coupon persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) (bool, error)
	CountUserRedemptions(ctx context.Context, code string, userID uuid.UUID) (int64, error)
	FindRedemptionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CouponRedemption, error)
	IncrementUsageIfAvailable(ctx context.Context, code string) (bool, error)
	InsertRedemption(ctx context.Context, redemption *models.CouponRedemption) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a coupon repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Where("code = ?", normalizeCode(code)).
		First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) SetActive(ctx context.Context, code string, active bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ?", normalizeCode(code)).
		Update("is_active", active)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CountUserRedemptions(ctx context.Context, code string, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_code = ? AND user_id = ?", normalizeCode(code), userID).
		Count(&count).Error
	return count, err
}

func (r *repository) FindRedemptionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CouponRedemption, error) {
	var redemption models.CouponRedemption
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&redemption).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}

// IncrementUsageIfAvailable consumes one global redemption slot in a single
// conditional write. It reports false when the coupon is inactive or the slot
// limit is already reached.
func (r *repository) IncrementUsageIfAvailable(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET usage_count = usage_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE code = ? AND is_active = ? AND (usage_limit = 0 OR usage_count < usage_limit)`,
		normalizeCode(code), true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertRedemption(ctx context.Context, redemption *models.CouponRedemption) error {
	redemption.CouponCode = normalizeCode(redemption.CouponCode)
	return r.db.WithContext(ctx).Create(redemption).Error
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
