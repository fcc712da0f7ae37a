package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// User is a provisioned subscriber account. Accounts are created by the
// redemption engine, the activation engine, or an operator; the subscription
// window is fixed at creation time.
type User struct {
	ID                uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username          string           `gorm:"column:username;type:text;not null;uniqueIndex"`
	PasswordHash      string           `gorm:"column:password_hash;not null"`
	Email             *string          `gorm:"column:email"`
	Status            enums.UserStatus `gorm:"column:status;type:user_status;not null;default:'active'"`
	SubscriptionStart time.Time        `gorm:"column:subscription_start;not null"`
	SubscriptionEnd   *time.Time       `gorm:"column:subscription_end"`
	PlanID            *uuid.UUID       `gorm:"column:plan_id;type:uuid;index"`
	ServerID          *uuid.UUID       `gorm:"column:server_id;type:uuid"`
	MaxDevices        int              `gorm:"column:max_devices;not null;default:1"`
	CreatedVia        *string          `gorm:"column:created_via"`
	LastLoginAt       *time.Time       `gorm:"column:last_login_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// SubscriptionActive reports whether the account's subscription window covers now.
// A nil end date means a lifetime subscription.
func (u User) SubscriptionActive(now time.Time) bool {
	if u.SubscriptionEnd == nil {
		return true
	}
	return u.SubscriptionEnd.After(now)
}
