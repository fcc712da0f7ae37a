package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityLog is the append-only audit trail for logins, redemptions, code
// generation and device operations.
type ActivityLog struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID      `gorm:"column:user_id;type:uuid;index"`
	AdminID   *uuid.UUID      `gorm:"column:admin_id;type:uuid;index"`
	Action    string          `gorm:"column:action;type:text;not null"`
	IPAddress *string         `gorm:"column:ip_address"`
	Details   json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
