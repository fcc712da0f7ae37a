package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// RedemptionCode is a limited-use subscription code generated in bulk by an
// operator and exchanged for a freshly provisioned account.
//
// used_count <= max_uses is enforced at increment time by the store, not by
// application-level read-modify-write.
type RedemptionCode struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string           `gorm:"column:code;type:text;not null;uniqueIndex"`
	SourceName   *string          `gorm:"column:source_name;index"`
	DurationDays int              `gorm:"column:duration_days;not null"`
	MaxUses      int              `gorm:"column:max_uses;not null;default:1"`
	UsedCount    int              `gorm:"column:used_count;not null;default:0"`
	Status       enums.CodeStatus `gorm:"column:status;type:code_status;not null;default:'active';index"`
	ExpiresAt    *time.Time       `gorm:"column:expires_at"`
	PlanID       uuid.UUID        `gorm:"column:plan_id;type:uuid;not null"`
	CreatedBy    *uuid.UUID       `gorm:"column:created_by;type:uuid"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the pluralized default; the schema names the table
// after what the codes sell, not the Go type.
func (RedemptionCode) TableName() string {
	return "subscription_codes"
}

// ExpiredAt reports whether the code's expiry has elapsed as of now.
func (c RedemptionCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Exhausted reports whether every permitted use has been consumed.
func (c RedemptionCode) Exhausted() bool {
	return c.UsedCount >= c.MaxUses
}

// CodeUsage is the append-only redemption history: one row per successful
// redemption, linking the code to the account it provisioned.
type CodeUsage struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CodeID      uuid.UUID `gorm:"column:code_id;type:uuid;not null;index"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	IPAddress   *string   `gorm:"column:ip_address"`
	ActivatedAt time.Time `gorm:"column:activated_at;autoCreateTime"`
}
