package enums

import "fmt"

// ContentStatus marks catalog entries (channels, categories) as servable or not.
type ContentStatus string

const (
	ContentStatusActive   ContentStatus = "active"
	ContentStatusInactive ContentStatus = "inactive"
)

var validContentStatuses = []ContentStatus{
	ContentStatusActive,
	ContentStatusInactive,
}

// String implements fmt.Stringer.
func (s ContentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ContentStatus) IsValid() bool {
	for _, candidate := range validContentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseContentStatus converts raw input into a ContentStatus.
func ParseContentStatus(value string) (ContentStatus, error) {
	for _, candidate := range validContentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid content status %q", value)
}
