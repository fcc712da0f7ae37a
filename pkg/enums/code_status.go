package enums

import "fmt"

// CodeStatus tracks the lifecycle of a redemption code.
type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusUsed     CodeStatus = "used"
	CodeStatusExpired  CodeStatus = "expired"
	CodeStatusDisabled CodeStatus = "disabled"
)

var validCodeStatuses = []CodeStatus{
	CodeStatusActive,
	CodeStatusUsed,
	CodeStatusExpired,
	CodeStatusDisabled,
}

// String implements fmt.Stringer.
func (s CodeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CodeStatus) IsValid() bool {
	for _, candidate := range validCodeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
// Code statuses only move forward: active -> used or active -> expired.
func (s CodeStatus) IsTerminal() bool {
	return s == CodeStatusUsed || s == CodeStatusExpired
}

// ParseCodeStatus converts raw input into a CodeStatus.
func ParseCodeStatus(value string) (CodeStatus, error) {
	for _, candidate := range validCodeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid code status %q", value)
}
