package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Coupon is a redeemable discount code. Value is a percentage (20 = 20%) for
// percentage coupons and minor units for fixed coupons.
type Coupon struct {
	Code             string           `gorm:"column:code;type:text;primaryKey"`
	Type             enums.CouponType `gorm:"column:type;type:text;not null"`
	Value            decimal.Decimal  `gorm:"column:value;type:numeric(12,4);not null"`
	MaxDiscountCents int64            `gorm:"column:max_discount_cents;not null;default:0"`
	MinOrderCents    int64            `gorm:"column:min_order_cents;not null;default:0"`
	UsageLimit       int              `gorm:"column:usage_limit;not null;default:0"`
	UserUsageLimit   int              `gorm:"column:user_usage_limit;not null;default:0"`
	UsageCount       int              `gorm:"column:usage_count;not null;default:0"`
	ServiceID        *uuid.UUID       `gorm:"column:service_id;type:uuid"`
	VendorID         *uuid.UUID       `gorm:"column:vendor_id;type:uuid"`
	StartsAt         *time.Time       `gorm:"column:starts_at"`
	EndsAt           *time.Time       `gorm:"column:ends_at"`
	IsActive         bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponRedemption records one consumed redemption slot. The per-user usage
// counter is the number of rows for (coupon_code, user_id).
type CouponRedemption struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CouponCode string    `gorm:"column:coupon_code;type:text;not null;index:idx_coupon_redemptions_user"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_coupon_redemptions_user"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_coupon_redemptions_order"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
