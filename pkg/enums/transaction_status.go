package enums

import "fmt"

type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "initiated"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionInitiated,
	TransactionCompleted,
	TransactionFailed,
}

// String implements fmt.Stringer.
func (v TransactionStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known TransactionStatus.
func (v TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
