package codes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/repo"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

// Filter narrows code listings and exports.
type Filter struct {
	Status     *enums.CodeStatus
	SourceName *string
	Search     *string
}

// Stats summarizes the code inventory for the dashboard.
type Stats struct {
	Total     int64            `json:"total"`
	Available int64            `json:"available"`
	Used      int64            `json:"used"`
	Expired   int64            `json:"expired"`
	Disabled  int64            `json:"disabled"`
	Sources   map[string]int64 `json:"sources"`
}

// Repository is the operator-facing store over the code inventory. The
// redemption engine has its own narrower repository; this one serves
// management operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a code-management repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// InsertBatch persists a generated batch in one statement.
func (r *Repository) InsertBatch(ctx context.Context, batch []models.RedemptionCode) error {
	if len(batch) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&batch).Error
}

// FindByID loads one code row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionCode, error) {
	var code models.RedemptionCode
	if err := r.DB(ctx).First(&code, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SourceName != nil {
		query = query.Where("source_name = ?", *filter.SourceName)
	}
	if filter.Search != nil && *filter.Search != "" {
		query = query.Where("code LIKE ?", "%"+*filter.Search+"%")
	}
	return query
}

// List returns codes newest first under the given filter.
func (r *Repository) List(ctx context.Context, filter Filter, params pagination.Params) ([]models.RedemptionCode, pagination.Meta, error) {
	params = params.Normalize()
	query := applyFilter(r.DB(ctx).Model(&models.RedemptionCode{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, pagination.Meta{}, err
	}

	var codesList []models.RedemptionCode
	err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&codesList).Error
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return codesList, pagination.NewMeta(total, params), nil
}

// ListAll returns every code under the filter, newest first. Used by exports.
func (r *Repository) ListAll(ctx context.Context, filter Filter) ([]models.RedemptionCode, error) {
	var codesList []models.RedemptionCode
	err := applyFilter(r.DB(ctx).Model(&models.RedemptionCode{}), filter).
		Order("created_at DESC").
		Find(&codesList).Error
	return codesList, err
}

// Updates patches the given columns on a code row.
func (r *Repository) Updates(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.RedemptionCode{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes a code row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Delete(&models.RedemptionCode{}, "id = ?", id).Error
}

// DeleteUnused removes the given codes, skipping any that were ever used.
// Returns the number of rows removed.
func (r *Repository) DeleteUnused(ctx context.Context, ids []uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Where("id IN ? AND status <> ?", ids, enums.CodeStatusUsed).
		Delete(&models.RedemptionCode{})
	return res.RowsAffected, res.Error
}

// Stats aggregates inventory counts per status and per source.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	type statusCount struct {
		Status enums.CodeStatus
		Count  int64
	}
	var byStatus []statusCount
	err := r.DB(ctx).
		Model(&models.RedemptionCode{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Sources: map[string]int64{}}
	for _, row := range byStatus {
		stats.Total += row.Count
		switch row.Status {
		case enums.CodeStatusActive:
			stats.Available = row.Count
		case enums.CodeStatusUsed:
			stats.Used = row.Count
		case enums.CodeStatusExpired:
			stats.Expired = row.Count
		case enums.CodeStatusDisabled:
			stats.Disabled = row.Count
		}
	}

	type sourceCount struct {
		SourceName string
		Count      int64
	}
	var bySource []sourceCount
	err = r.DB(ctx).
		Model(&models.RedemptionCode{}).
		Select("source_name, COUNT(*) as count").
		Where("source_name IS NOT NULL").
		Group("source_name").
		Scan(&bySource).Error
	if err != nil {
		return Stats{}, err
	}
	for _, row := range bySource {
		stats.Sources[row.SourceName] = row.Count
	}
	return stats, nil
}

// UsagesForCode returns the redemption history rows for a code, newest first.
func (r *Repository) UsagesForCode(ctx context.Context, codeID uuid.UUID) ([]models.CodeUsage, error) {
	var usages []models.CodeUsage
	err := r.DB(ctx).
		Where("code_id = ?", codeID).
		Order("activated_at DESC").
		Find(&usages).Error
	return usages, err
}
