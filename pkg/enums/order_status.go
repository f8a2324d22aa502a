package enums

import "fmt"

// OrderStatus is the lifecycle state of a booking order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderAccepted   OrderStatus = "accepted"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderRejected   OrderStatus = "rejected"
	OrderCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderPending,
	OrderAccepted,
	OrderInProgress,
	OrderCompleted,
	OrderRejected,
	OrderCancelled,
}

// String implements fmt.Stringer.
func (v OrderStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OrderStatus.
func (v OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsTerminal reports whether no further lifecycle transitions are possible.
func (v OrderStatus) IsTerminal() bool {
	switch v {
	case OrderCompleted, OrderRejected, OrderCancelled:
		return true
	default:
		return false
	}
}
