package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceOffering is the bookable service as published by the catalog.
type ServiceOffering struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name             string          `gorm:"column:name;type:text;not null"`
	BasePriceCents   int64           `gorm:"column:base_price_cents;not null"`
	DiscountPercent  decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	DeliveryFeeCents int64           `gorm:"column:delivery_fee_cents;not null;default:0"`
	IsActive         bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
