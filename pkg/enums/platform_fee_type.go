package enums

import "fmt"

type PlatformFeeType string

const (
	PlatformFeeFlat       PlatformFeeType = "flat"
	PlatformFeePercentage PlatformFeeType = "percentage"
)

var validPlatformFeeTypes = []PlatformFeeType{
	PlatformFeeFlat,
	PlatformFeePercentage,
}

// String implements fmt.Stringer.
func (v PlatformFeeType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PlatformFeeType.
func (v PlatformFeeType) IsValid() bool {
	for _, candidate := range validPlatformFeeTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePlatformFeeType converts raw input into a PlatformFeeType.
func ParsePlatformFeeType(value string) (PlatformFeeType, error) {
	for _, candidate := range validPlatformFeeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform fee type %q", value)
}
