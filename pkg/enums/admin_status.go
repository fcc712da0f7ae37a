package enums

import "fmt"

// AdminStatus tracks whether an operator account may sign in.
type AdminStatus string

const (
	AdminStatusActive   AdminStatus = "active"
	AdminStatusDisabled AdminStatus = "disabled"
)

var validAdminStatuses = []AdminStatus{
	AdminStatusActive,
	AdminStatusDisabled,
}

// String implements fmt.Stringer.
func (s AdminStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s AdminStatus) IsValid() bool {
	for _, candidate := range validAdminStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAdminStatus converts raw input into an AdminStatus.
func ParseAdminStatus(value string) (AdminStatus, error) {
	for _, candidate := range validAdminStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin status %q", value)
}
