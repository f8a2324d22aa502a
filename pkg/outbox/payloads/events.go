// Package payloads defines the data section of each settlement outbox event.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

type OrderCreated struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	VendorID   uuid.UUID `json:"vendorId"`
	TotalCents int64     `json:"totalCents"`
	Currency   string    `json:"currency"`
	CouponCode *string   `json:"couponCode,omitempty"`
}

type OrderStatusChanged struct {
	OrderID uuid.UUID `json:"orderId"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Version int       `json:"version"`
	Reason  *string   `json:"reason,omitempty"`
}

type PaymentEvent struct {
	OrderID           uuid.UUID `json:"orderId"`
	TransactionID     uuid.UUID `json:"transactionId"`
	Method            string    `json:"method"`
	ExternalReference string    `json:"externalReference"`
	AmountCents       int64     `json:"amountCents"`
	CommissionCents   int64     `json:"commissionCents,omitempty"`
	VendorCents       int64     `json:"vendorCents,omitempty"`
	FailureReason     *string   `json:"failureReason,omitempty"`
}

type CouponLimitExceeded struct {
	CouponCode string    `json:"couponCode"`
	OrderID    uuid.UUID `json:"orderId"`
	UserID     uuid.UUID `json:"userId"`
	Reason     string    `json:"reason"`
}

type RefundEvent struct {
	RefundID      uuid.UUID  `json:"refundId"`
	OrderID       uuid.UUID  `json:"orderId"`
	AmountCents   int64      `json:"amountCents"`
	Status        string     `json:"status"`
	TransactionID *uuid.UUID `json:"transactionId,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
}

type PayoutEvent struct {
	PayoutID      uuid.UUID  `json:"payoutId"`
	VendorID      uuid.UUID  `json:"vendorId"`
	AmountCents   int64      `json:"amountCents"`
	Status        string     `json:"status"`
	TransactionID *uuid.UUID `json:"transactionId,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
}
