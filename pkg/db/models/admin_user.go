package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// AdminUser is an operator of the admin console.
type AdminUser struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username     string            `gorm:"column:username;type:text;not null;uniqueIndex"`
	PasswordHash string            `gorm:"column:password_hash;not null"`
	Email        *string           `gorm:"column:email"`
	Status       enums.AdminStatus `gorm:"column:status;type:admin_status;not null;default:'active'"`
	LastLoginAt  *time.Time        `gorm:"column:last_login_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// AdminSession is a revocable operator session. The raw bearer token is never
// stored; rows are keyed by its SHA-256 digest so a leaked table cannot be
// replayed.
type AdminSession struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AdminID      uuid.UUID  `gorm:"column:admin_id;type:uuid;not null;index"`
	TokenHash    string     `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	IPAddress    *string    `gorm:"column:ip_address"`
	UserAgent    *string    `gorm:"column:user_agent"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	LastActivity *time.Time `gorm:"column:last_activity"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}
