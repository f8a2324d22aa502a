package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// Order is a booking and its frozen pricing snapshot. Status is written only by
// the order lifecycle; PaymentStatus only by the ledger.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID    uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	VendorID      uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	ServiceID     uuid.UUID           `gorm:"column:service_id;type:uuid;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`

	Currency             string  `gorm:"column:currency;type:text;not null"`
	BasePriceCents       int64   `gorm:"column:base_price_cents;not null"`
	ServiceDiscountCents int64   `gorm:"column:service_discount_cents;not null"`
	CouponCode           *string `gorm:"column:coupon_code;type:text"`
	CouponDiscountCents  int64   `gorm:"column:coupon_discount_cents;not null"`
	TaxCents             int64   `gorm:"column:tax_cents;not null"`
	PlatformFeeCents     int64   `gorm:"column:platform_fee_cents;not null"`
	TotalCents           int64   `gorm:"column:total_cents;not null"`

	ScheduledAt time.Time     `gorm:"column:scheduled_at;not null"`
	Address     types.Address `gorm:"column:address;type:jsonb;not null"`
	Notes       *string       `gorm:"column:notes;type:text"`
	Version     int           `gorm:"column:version;not null;default:1"`
	ArchivedAt  *time.Time    `gorm:"column:archived_at"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
