package models

import "github.com/google/uuid"

// UserChannel is an entitlement grant copied from the plan mapping at
// provisioning time. A later plan change does not touch these rows unless an
// operator explicitly re-syncs the account.
type UserChannel struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	ChannelID uuid.UUID `gorm:"column:channel_id;type:uuid;primaryKey"`
}

// UserCategory is the category-level entitlement grant for an account.
type UserCategory struct {
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;primaryKey"`
}
