package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/repo"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

// Well-known activity log actions.
const (
	ActionCodesGenerated    = "codes_generated"
	ActionCodeRedeemed      = "code_redeemed"
	ActionAdminLogin        = "admin_login"
	ActionAdminLogout       = "admin_logout"
	ActionUserLogin         = "user_login"
	ActionDeviceActivated   = "device_activated"
	ActionDeviceDeactivated = "device_deactivated"
)

// Repository appends and reads activity log rows. Rows are never updated.
type Repository struct {
	repo.Base
}

// NewRepository constructs an audit repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Entry describes one activity to record.
type Entry struct {
	UserID    *uuid.UUID
	AdminID   *uuid.UUID
	Action    string
	IPAddress *string
	Details   any
}

// Append records an activity. Marshal failures of Details degrade to a row
// without details rather than losing the event.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	var details json.RawMessage
	if entry.Details != nil {
		if payload, err := json.Marshal(entry.Details); err == nil {
			details = payload
		}
	}
	return r.DB(ctx).Create(&models.ActivityLog{
		ID:        uuid.New(),
		UserID:    entry.UserID,
		AdminID:   entry.AdminID,
		Action:    entry.Action,
		IPAddress: entry.IPAddress,
		Details:   details,
	}).Error
}

// List returns activity rows newest first, optionally filtered by action.
func (r *Repository) List(ctx context.Context, action *string, params pagination.Params) ([]models.ActivityLog, pagination.Meta, error) {
	params = params.Normalize()
	query := r.DB(ctx).Model(&models.ActivityLog{})
	if action != nil {
		query = query.Where("action = ?", *action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, pagination.Meta{}, err
	}

	var rows []models.ActivityLog
	err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return rows, pagination.NewMeta(total, params), nil
}
