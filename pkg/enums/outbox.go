package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateRefund      OutboxAggregateType = "refund_request"
	AggregatePayout      OutboxAggregateType = "payout"
	AggregateCoupon      OutboxAggregateType = "coupon"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateTransaction,
	AggregateRefund,
	AggregatePayout,
	AggregateCoupon,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain events consumed by notification and
// invoice collaborators.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderArchived       OutboxEventType = "order_archived"
	EventPaymentInitiated    OutboxEventType = "payment_initiated"
	EventPaymentCompleted    OutboxEventType = "payment_completed"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventPaymentProofAdded   OutboxEventType = "payment_proof_submitted"
	EventCouponLimitExceeded OutboxEventType = "coupon_limit_exceeded"
	EventRefundRequested     OutboxEventType = "refund_requested"
	EventRefundProcessed     OutboxEventType = "refund_processed"
	EventRefundRejected      OutboxEventType = "refund_rejected"
	EventPayoutRequested     OutboxEventType = "payout_requested"
	EventPayoutPaid          OutboxEventType = "payout_paid"
	EventPayoutRejected      OutboxEventType = "payout_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderArchived,
	EventPaymentInitiated,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentProofAdded,
	EventCouponLimitExceeded,
	EventRefundRequested,
	EventRefundProcessed,
	EventRefundRejected,
	EventPayoutRequested,
	EventPayoutPaid,
	EventPayoutRejected,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
