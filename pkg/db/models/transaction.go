package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Transaction is one ledger row. Completed and failed rows are immutable; an
// initiated payment row is finalised exactly once.
type Transaction struct {
	ID                       uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                  *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	VendorID                 uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index"`
	Type                     enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Status                   enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	AmountCents              int64                   `gorm:"column:amount_cents;not null"`
	CommissionCents          int64                   `gorm:"column:commission_cents;not null;default:0"`
	VendorCents              int64                   `gorm:"column:vendor_cents;not null;default:0"`
	Currency                 string                  `gorm:"column:currency;type:text;not null"`
	PaymentMethod            *enums.PaymentMethod    `gorm:"column:payment_method;type:text"`
	ExternalReference        *string                 `gorm:"column:external_reference;type:text;uniqueIndex:uq_transactions_external_reference"`
	OriginatingTransactionID *uuid.UUID              `gorm:"column:originating_transaction_id;type:uuid"`
	PayoutID                 *uuid.UUID              `gorm:"column:payout_id;type:uuid"`
	ProofReference           *string                 `gorm:"column:proof_reference;type:text"`
	FailureReason            *string                 `gorm:"column:failure_reason;type:text"`
	CreatedAt                time.Time               `gorm:"column:created_at;autoCreateTime"`
	CompletedAt              *time.Time              `gorm:"column:completed_at"`
}

// OrderIDValue returns the order id or uuid.Nil for payout rows.
func (t *Transaction) OrderIDValue() uuid.UUID {
	if t.OrderID == nil {
		return uuid.Nil
	}
	return *t.OrderID
}
