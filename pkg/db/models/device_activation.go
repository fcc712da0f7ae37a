package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// DeviceActivation pairs an anonymous playback device (identified by MAC) with
// a paid plan via a short operator-facing device key. At most one
// non-deactivated row exists per MAC address.
type DeviceActivation struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DeviceKey   string             `gorm:"column:device_key;type:text;not null;uniqueIndex"`
	MacAddress  string             `gorm:"column:mac_address;type:text;not null;index"`
	DeviceInfo  json.RawMessage    `gorm:"column:device_info;type:jsonb"`
	Status      enums.DeviceStatus `gorm:"column:status;type:device_status;not null;default:'pending';index"`
	PlanID      *uuid.UUID         `gorm:"column:plan_id;type:uuid"`
	UserID      *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	ExpiresAt   *time.Time         `gorm:"column:expires_at"`
	LastCheckAt *time.Time         `gorm:"column:last_check_at"`
	LastIP      *string            `gorm:"column:last_ip"`
	CheckCount  int                `gorm:"column:check_count;not null;default:0"`
	ActivatedBy *uuid.UUID         `gorm:"column:activated_by;type:uuid"`
	ActivatedAt *time.Time         `gorm:"column:activated_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the pairing is active and unexpired as of now.
func (d DeviceActivation) ActiveAt(now time.Time) bool {
	if d.Status != enums.DeviceStatusActive {
		return false
	}
	return d.ExpiresAt == nil || d.ExpiresAt.After(now)
}

// DeviceActivationHistory is the append-only audit log per device, used for
// dispute resolution. Rows are never updated or deleted.
type DeviceActivationHistory struct {
	ID                 uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DeviceActivationID uuid.UUID          `gorm:"column:device_activation_id;type:uuid;not null;index"`
	Action             enums.DeviceAction `gorm:"column:action;type:text;not null"`
	PerformedBy        *uuid.UUID         `gorm:"column:performed_by;type:uuid"`
	Details            json.RawMessage    `gorm:"column:details;type:jsonb"`
	IPAddress          *string            `gorm:"column:ip_address"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the pluralized default; the schema uses the singular
// "history" for the append-only log.
func (DeviceActivationHistory) TableName() string {
	return "device_activation_history"
}
