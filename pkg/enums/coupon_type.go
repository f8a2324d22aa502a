package enums

import "fmt"

type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixed        CouponType = "fixed"
	CouponFreeDelivery CouponType = "free_delivery"
)

var validCouponTypes = []CouponType{
	CouponPercentage,
	CouponFixed,
	CouponFreeDelivery,
}

// String implements fmt.Stringer.
func (v CouponType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CouponType.
func (v CouponType) IsValid() bool {
	for _, candidate := range validCouponTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCouponType converts raw input into a CouponType.
func ParseCouponType(value string) (CouponType, error) {
	for _, candidate := range validCouponTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon type %q", value)
}
