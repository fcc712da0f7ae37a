package enums

import "fmt"

// DeviceStatus tracks the pairing state machine for a playback device.
type DeviceStatus string

const (
	DeviceStatusPending     DeviceStatus = "pending"
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusExpired     DeviceStatus = "expired"
	DeviceStatusDeactivated DeviceStatus = "deactivated"
)

var validDeviceStatuses = []DeviceStatus{
	DeviceStatusPending,
	DeviceStatusActive,
	DeviceStatusExpired,
	DeviceStatusDeactivated,
}

// deviceTransitions is the closed transition table. Deactivated is terminal.
var deviceTransitions = map[DeviceStatus][]DeviceStatus{
	DeviceStatusPending:     {DeviceStatusActive, DeviceStatusExpired, DeviceStatusDeactivated},
	DeviceStatusActive:      {DeviceStatusExpired, DeviceStatusDeactivated},
	DeviceStatusExpired:     {DeviceStatusActive, DeviceStatusDeactivated},
	DeviceStatusDeactivated: nil,
}

// String implements fmt.Stringer.
func (s DeviceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s DeviceStatus) IsValid() bool {
	for _, candidate := range validDeviceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s DeviceStatus) CanTransitionTo(next DeviceStatus) bool {
	for _, candidate := range deviceTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseDeviceStatus converts raw input into a DeviceStatus.
func ParseDeviceStatus(value string) (DeviceStatus, error) {
	for _, candidate := range validDeviceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid device status %q", value)
}
