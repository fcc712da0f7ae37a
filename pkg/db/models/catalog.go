package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// Plan is a purchasable subscription tier. Plans are referenced read-only by
// the provisioning engines; their duration and server assignment are copied
// into accounts at creation time.
type Plan struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string              `gorm:"column:name;type:text;not null"`
	DurationDays int                 `gorm:"column:duration_days;not null"`
	Price        decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	MaxDevices   int                 `gorm:"column:max_devices;not null;default:1"`
	ServerID     *uuid.UUID          `gorm:"column:server_id;type:uuid"`
	Status       enums.ContentStatus `gorm:"column:status;type:content_status;not null;default:'active'"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// StreamServer is a delivery server a plan points at. A plan with no server
// may never provision accounts.
type StreamServer struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string              `gorm:"column:name;type:text;not null"`
	URL       string              `gorm:"column:url;type:text;not null"`
	Status    enums.ContentStatus `gorm:"column:status;type:content_status;not null;default:'active'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Category groups channels in the catalog.
type Category struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string              `gorm:"column:name;type:text;not null"`
	Status    enums.ContentStatus `gorm:"column:status;type:content_status;not null;default:'active';index"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Channel is a single live stream in the catalog.
type Channel struct {
	ID         uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string              `gorm:"column:name;type:text;not null"`
	CategoryID *uuid.UUID          `gorm:"column:category_id;type:uuid;index"`
	StreamURL  string              `gorm:"column:stream_url;type:text;not null"`
	Status     enums.ContentStatus `gorm:"column:status;type:content_status;not null;default:'active';index"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PlanChannel maps a plan to a channel it entitles.
type PlanChannel struct {
	PlanID    uuid.UUID `gorm:"column:plan_id;type:uuid;primaryKey"`
	ChannelID uuid.UUID `gorm:"column:channel_id;type:uuid;primaryKey"`
}

// PlanCategory maps a plan to a category it entitles.
type PlanCategory struct {
	PlanID     uuid.UUID `gorm:"column:plan_id;type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;primaryKey"`
}
