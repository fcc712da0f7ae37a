package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/pkg/db/models"
)

// GormStore persists admin sessions through the shared GORM connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, session *models.AdminSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *GormStore) FindByTokenHash(ctx context.Context, hash string) (*models.AdminSession, error) {
	var sess models.AdminSession
	err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) Touch(ctx context.Context, hash string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.AdminSession{}).
		Where("token_hash = ?", hash).
		Update("last_activity", at).Error
}

func (s *GormStore) DeleteByTokenHash(ctx context.Context, hash string) error {
	return s.db.WithContext(ctx).
		Where("token_hash = ?", hash).
		Delete(&models.AdminSession{}).Error
}

func (s *GormStore) DeleteForAdmin(ctx context.Context, adminID uuid.UUID, exceptHash string) (int64, error) {
	query := s.db.WithContext(ctx).Where("admin_id = ?", adminID)
	if exceptHash != "" {
		query = query.Where("token_hash <> ?", exceptHash)
	}
	res := query.Delete(&models.AdminSession{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) ListForAdmin(ctx context.Context, adminID uuid.UUID, now time.Time) ([]models.AdminSession, error) {
	var rows []models.AdminSession
	err := s.db.WithContext(ctx).
		Where("admin_id = ? AND expires_at > ?", adminID, now).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.AdminSession{})
	return res.RowsAffected, res.Error
}
