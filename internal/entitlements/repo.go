package entitlements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// Repository reads plan-to-content mappings and writes per-account grants.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an entitlements repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PlanChannelIDs returns the channel ids explicitly mapped to the plan.
func (r *Repository) PlanChannelIDs(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PlanChannel{}).
		Where("plan_id = ?", planID).
		Pluck("channel_id", &ids).Error
	return ids, err
}

// PlanCategoryIDs returns the category ids explicitly mapped to the plan.
func (r *Repository) PlanCategoryIDs(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PlanCategory{}).
		Where("plan_id = ?", planID).
		Pluck("category_id", &ids).Error
	return ids, err
}

// ActiveChannelIDs returns every channel currently marked active.
func (r *Repository) ActiveChannelIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("status = ?", enums.ContentStatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

// ActiveCategoryIDs returns every category currently marked active.
func (r *Repository) ActiveCategoryIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Category{}).
		Where("status = ?", enums.ContentStatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

// ReplaceGrants overwrites the account's entitlement rows with the given set.
func (r *Repository) ReplaceGrants(ctx context.Context, userID uuid.UUID, grant Grant) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.UserChannel{}).Error; err != nil {
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&models.UserCategory{}).Error; err != nil {
		return err
	}
	for _, channelID := range grant.ChannelIDs {
		if err := db.Create(&models.UserChannel{UserID: userID, ChannelID: channelID}).Error; err != nil {
			return err
		}
	}
	for _, categoryID := range grant.CategoryIDs {
		if err := db.Create(&models.UserCategory{UserID: userID, CategoryID: categoryID}).Error; err != nil {
			return err
		}
	}
	return nil
}

// GrantsFor returns the account's persisted entitlement set.
func (r *Repository) GrantsFor(ctx context.Context, userID uuid.UUID) (Grant, error) {
	var grant Grant
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.UserChannel{}).
		Where("user_id = ?", userID).
		Pluck("channel_id", &grant.ChannelIDs).Error; err != nil {
		return Grant{}, err
	}
	if err := db.Model(&models.UserCategory{}).
		Where("user_id = ?", userID).
		Pluck("category_id", &grant.CategoryIDs).Error; err != nil {
		return Grant{}, err
	}
	return grant, nil
}
