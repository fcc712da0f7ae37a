package enums

// DeviceAction labels entries in the per-device audit history.
type DeviceAction string

const (
	DeviceActionRegistered  DeviceAction = "registered"
	DeviceActionActivated   DeviceAction = "activated"
	DeviceActionExpired     DeviceAction = "expired"
	DeviceActionDeactivated DeviceAction = "deactivated"
)

// String implements fmt.Stringer.
func (a DeviceAction) String() string {
	return string(a)
}
