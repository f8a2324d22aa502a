package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// RefundRequest is a customer-initiated, admin-decided reversal.
type RefundRequest struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerID      uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Reason          string             `gorm:"column:reason;type:text;not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null"`
	DecidedBy       *uuid.UUID         `gorm:"column:decided_by;type:uuid"`
	DecidedAt       *time.Time         `gorm:"column:decided_at"`
	TransactionID   *uuid.UUID         `gorm:"column:transaction_id;type:uuid"`
	RejectionReason *string            `gorm:"column:rejection_reason;type:text"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
