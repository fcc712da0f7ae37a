package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/repo"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

// Repository exposes read/write access to plans, channels, categories, and
// stream servers. The provisioning engines only read from it.
type Repository struct {
	repo.Base
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindPlanByID loads a plan by its UUID.
func (r *Repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.DB(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns plans ordered by creation, newest first.
func (r *Repository) ListPlans(ctx context.Context, params pagination.Params) ([]models.Plan, int64, error) {
	var total int64
	if err := r.DB(ctx).Model(&models.Plan{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var plans []models.Plan
	n := params.Normalize()
	err := r.DB(ctx).
		Order("created_at DESC").
		Limit(n.Limit).
		Offset(params.Offset()).
		Find(&plans).Error
	return plans, total, err
}

// CreatePlan inserts a new plan.
func (r *Repository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return r.DB(ctx).Create(plan).Error
}

// UpdatePlan applies the provided column updates to a plan.
func (r *Repository) UpdatePlan(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Plan{}).Where("id = ?", id).Updates(updates).Error
}

// DeletePlan removes a plan.
func (r *Repository) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Delete(&models.Plan{}, "id = ?", id).Error
}

// FindServerByID loads a stream server by its UUID.
func (r *Repository) FindServerByID(ctx context.Context, id uuid.UUID) (*models.StreamServer, error) {
	var server models.StreamServer
	if err := r.DB(ctx).First(&server, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// ListServers returns all stream servers.
func (r *Repository) ListServers(ctx context.Context) ([]models.StreamServer, error) {
	var servers []models.StreamServer
	err := r.DB(ctx).Order("name ASC").Find(&servers).Error
	return servers, err
}

// ListChannels returns channels, optionally filtered to a category.
func (r *Repository) ListChannels(ctx context.Context, categoryID *uuid.UUID, params pagination.Params) ([]models.Channel, int64, error) {
	query := r.DB(ctx).Model(&models.Channel{})
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var channels []models.Channel
	n := params.Normalize()
	err := query.
		Order("name ASC").
		Limit(n.Limit).
		Offset(params.Offset()).
		Find(&channels).Error
	return channels, total, err
}

// ListCategories returns categories filtered by status when provided.
func (r *Repository) ListCategories(ctx context.Context, status *enums.ContentStatus) ([]models.Category, error) {
	query := r.DB(ctx).Model(&models.Category{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var categories []models.Category
	err := query.Order("name ASC").Find(&categories).Error
	return categories, err
}

// ChannelNamesByIDs maps a set of channel ids to their display names.
func (r *Repository) ChannelNamesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	var channels []models.Channel
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&channels).Error; err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(channels))
	for _, ch := range channels {
		names[ch.ID] = ch.Name
	}
	return names, nil
}
