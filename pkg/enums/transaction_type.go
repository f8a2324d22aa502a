package enums

import "fmt"

// TransactionType classifies ledger rows.
type TransactionType string

const (
	TransactionPayment TransactionType = "payment"
	TransactionRefund  TransactionType = "refund"
	TransactionPayout  TransactionType = "payout"
)

var validTransactionTypes = []TransactionType{
	TransactionPayment,
	TransactionRefund,
	TransactionPayout,
}

// String implements fmt.Stringer.
func (v TransactionType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known TransactionType.
func (v TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
