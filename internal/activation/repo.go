package activation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/repo"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

// Repository persists device pairings and their append-only history.
type Repository struct {
	repo.Base
}

// NewRepository constructs an activation repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// NormalizeMAC canonicalizes a MAC address for storage and lookup.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// Create inserts a new device pairing row.
func (r *Repository) Create(ctx context.Context, device *models.DeviceActivation) error {
	return r.DB(ctx).Create(device).Error
}

// FindByKey loads a pairing by its operator-facing device key.
func (r *Repository) FindByKey(ctx context.Context, deviceKey string) (*models.DeviceActivation, error) {
	var device models.DeviceActivation
	if err := r.DB(ctx).Where("device_key = ?", deviceKey).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// FindByKeyAndMAC loads a pairing only when both identifiers match the same
// row. A valid key presented with a different MAC does not resolve.
func (r *Repository) FindByKeyAndMAC(ctx context.Context, deviceKey, mac string) (*models.DeviceActivation, error) {
	var device models.DeviceActivation
	err := r.DB(ctx).
		Where("device_key = ? AND mac_address = ?", deviceKey, NormalizeMAC(mac)).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// FindCurrentByMAC returns the single non-deactivated pairing for a MAC, if
// one exists.
func (r *Repository) FindCurrentByMAC(ctx context.Context, mac string) (*models.DeviceActivation, error) {
	var device models.DeviceActivation
	err := r.DB(ctx).
		Where("mac_address = ? AND status <> ?", NormalizeMAC(mac), enums.DeviceStatusDeactivated).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// KeyExists reports whether a device key is already taken.
func (r *Repository) KeyExists(ctx context.Context, deviceKey string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.DeviceActivation{}).
		Where("device_key = ?", deviceKey).
		Count(&count).Error
	return count > 0, err
}

// Update persists the mutable fields of a pairing row.
func (r *Repository) Update(ctx context.Context, device *models.DeviceActivation) error {
	return r.DB(ctx).Save(device).Error
}

// MarkExpired flips an active pairing to expired. Writing expired twice is
// harmless, so no prior-status read is needed.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.DeviceActivation{}).
		Where("id = ? AND status = ?", id, enums.DeviceStatusActive).
		Update("status", enums.DeviceStatusExpired).Error
}

// RecordCheck stamps poll telemetry on the pairing row.
func (r *Repository) RecordCheck(ctx context.Context, id uuid.UUID, at time.Time, ip *string) error {
	updates := map[string]any{
		"check_count":   gorm.Expr("check_count + 1"),
		"last_check_at": at,
	}
	if ip != nil {
		updates["last_ip"] = *ip
	}
	return r.DB(ctx).
		Model(&models.DeviceActivation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendHistory inserts an audit row. History rows are never updated.
func (r *Repository) AppendHistory(ctx context.Context, entry *models.DeviceActivationHistory) error {
	return r.DB(ctx).Create(entry).Error
}

// HistoryFor returns the audit trail for a pairing, oldest first.
func (r *Repository) HistoryFor(ctx context.Context, deviceID uuid.UUID) ([]models.DeviceActivationHistory, error) {
	var entries []models.DeviceActivationHistory
	err := r.DB(ctx).
		Where("device_activation_id = ?", deviceID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// List returns pairings newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *enums.DeviceStatus, params pagination.Params) ([]models.DeviceActivation, pagination.Meta, error) {
	params = params.Normalize()
	query := r.DB(ctx).Model(&models.DeviceActivation{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, pagination.Meta{}, err
	}

	var devices []models.DeviceActivation
	err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&devices).Error
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return devices, pagination.NewMeta(total, params), nil
}

// ExpireLapsed flips active pairings whose expiry has passed. Returns the
// number of rows transitioned.
func (r *Repository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.DeviceActivation{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.DeviceStatusActive, now).
		Update("status", enums.DeviceStatusExpired)
	return res.RowsAffected, res.Error
}
