package enums

import "fmt"

// PaymentMethod selects the gateway variant used to capture a payment.
type PaymentMethod string

const (
	PaymentMethodRedirect PaymentMethod = "redirect"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodManual   PaymentMethod = "manual"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodRedirect,
	PaymentMethodCard,
	PaymentMethodManual,
}

// String implements fmt.Stringer.
func (v PaymentMethod) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentMethod.
func (v PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
