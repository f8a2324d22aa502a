package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Payout is a vendor withdrawal request; terminal once paid or rejected.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Currency        string             `gorm:"column:currency;type:text;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:text;not null"`
	RequestedAt     time.Time          `gorm:"column:requested_at;not null"`
	DecidedBy       *uuid.UUID         `gorm:"column:decided_by;type:uuid"`
	DecidedAt       *time.Time         `gorm:"column:decided_at"`
	TransactionID   *uuid.UUID         `gorm:"column:transaction_id;type:uuid"`
	RejectionReason *string            `gorm:"column:rejection_reason;type:text"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// VendorBalance is the materialised available balance guarding payouts and
// refunds. It is only changed through conditional updates.
type VendorBalance struct {
	VendorID       uuid.UUID `gorm:"column:vendor_id;type:uuid;primaryKey"`
	AvailableCents int64     `gorm:"column:available_cents;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
