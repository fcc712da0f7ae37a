package redemption

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// Repository persists redemption codes and their usage history.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a redemption repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode retrieves a code row by its normalized token.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.RedemptionCode, error) {
	var row models.RedemptionCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByID loads a code row by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionCode, error) {
	var row models.RedemptionCode
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// TryConsume atomically increments used_count while it is still below
// max_uses. The conditional update is the single race-free point for the
// check-then-increment; concurrent callers on a nearly-exhausted code see
// false instead of over-consuming.
func (r *Repository) TryConsume(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RedemptionCode{}).
		Where("id = ? AND used_count < max_uses", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkStatus flips a code's status, but only forward from the expected prior
// status. A used or expired code never returns to active.
func (r *Repository) MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.CodeStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.RedemptionCode{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to).Error
}

// InsertUsage appends a redemption-history row.
func (r *Repository) InsertUsage(ctx context.Context, usage *models.CodeUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// UsagesForCode returns the redemption history for a code, newest first.
func (r *Repository) UsagesForCode(ctx context.Context, codeID uuid.UUID) ([]models.CodeUsage, error) {
	var usages []models.CodeUsage
	err := r.db.WithContext(ctx).
		Where("code_id = ?", codeID).
		Order("activated_at DESC").
		Find(&usages).Error
	return usages, err
}

// ExpireLapsed flips active codes whose expiry has passed. Returns the number
// of rows transitioned.
func (r *Repository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RedemptionCode{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.CodeStatusActive, now).
		Update("status", enums.CodeStatusExpired)
	return res.RowsAffected, res.Error
}
