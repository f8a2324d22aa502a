package enums

import "fmt"

// PayoutStatus tracks a vendor withdrawal request.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutApproved PayoutStatus = "approved"
	PayoutRejected PayoutStatus = "rejected"
	PayoutPaid     PayoutStatus = "paid"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutPending,
	PayoutApproved,
	PayoutRejected,
	PayoutPaid,
}

// String implements fmt.Stringer.
func (v PayoutStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PayoutStatus.
func (v PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
