package enums

import "fmt"

// RefundStatus tracks a customer refund request.
type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundApproved  RefundStatus = "approved"
	RefundProcessed RefundStatus = "processed"
	RefundRejected  RefundStatus = "rejected"
)

var validRefundStatuses = []RefundStatus{
	RefundRequested,
	RefundApproved,
	RefundProcessed,
	RefundRejected,
}

// String implements fmt.Stringer.
func (v RefundStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known RefundStatus.
func (v RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
