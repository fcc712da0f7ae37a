package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/security"
)

// ErrSessionNotFound signals the bearer token has no live session row, either
// because it was revoked or never issued.
var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence surface the manager needs. Sessions live in
// postgres so revocation survives restarts.
type Store interface {
	Create(ctx context.Context, session *models.AdminSession) error
	FindByTokenHash(ctx context.Context, hash string) (*models.AdminSession, error)
	Touch(ctx context.Context, hash string, at time.Time) error
	DeleteByTokenHash(ctx context.Context, hash string) error
	DeleteForAdmin(ctx context.Context, adminID uuid.UUID, exceptHash string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	ListForAdmin(ctx context.Context, adminID uuid.UUID, now time.Time) ([]models.AdminSession, error)
}

// Checker exposes the read-only surface needed by middleware.
type Checker interface {
	HasSession(ctx context.Context, token string) (bool, error)
}

// Manager tracks operator sessions keyed by the SHA-256 digest of the bearer
// token. Issuing happens alongside JWT minting; validation happens on every
// authenticated admin request so revocation takes effect immediately.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Create records a session row for the provided token.
func (m *Manager) Create(ctx context.Context, adminID uuid.UUID, token string, ip, userAgent *string, now time.Time) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return m.store.Create(ctx, &models.AdminSession{
		ID:        uuid.New(),
		AdminID:   adminID,
		TokenHash: security.HashToken(token),
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(m.ttl),
	})
}

// HasSession reports whether the token maps to a live, unexpired session.
// Hitting an expired row deletes it on the way out.
func (m *Manager) HasSession(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	hash := security.HashToken(token)
	sess, err := m.store.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	now := time.Now()
	if !sess.ExpiresAt.After(now) {
		_ = m.store.DeleteByTokenHash(ctx, hash)
		return false, nil
	}
	_ = m.store.Touch(ctx, hash, now)
	return true, nil
}

// Revoke deletes the session for the provided token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return m.store.DeleteByTokenHash(ctx, security.HashToken(token))
}

// RevokeAll deletes every session for the admin. When keepToken is non-empty
// the session backing it survives, so "log out everywhere else" keeps the
// caller signed in.
func (m *Manager) RevokeAll(ctx context.Context, adminID uuid.UUID, keepToken string) (int64, error) {
	exceptHash := ""
	if strings.TrimSpace(keepToken) != "" {
		exceptHash = security.HashToken(keepToken)
	}
	return m.store.DeleteForAdmin(ctx, adminID, exceptHash)
}

// PurgeExpired removes sessions whose expiry has passed.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.store.DeleteExpired(ctx, now)
}

// SessionInfo describes one live session without exposing the token digest.
type SessionInfo struct {
	ID           uuid.UUID  `json:"id"`
	IPAddress    *string    `json:"ip_address,omitempty"`
	UserAgent    *string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Current      bool       `json:"current"`
}

// ListFor returns the admin's live sessions, marking the one backing
// currentToken.
func (m *Manager) ListFor(ctx context.Context, adminID uuid.UUID, currentToken string) ([]SessionInfo, error) {
	currentHash := ""
	if strings.TrimSpace(currentToken) != "" {
		currentHash = security.HashToken(currentToken)
	}
	rows, err := m.store.ListForAdmin(ctx, adminID, time.Now())
	if err != nil {
		return nil, err
	}
	infos := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, SessionInfo{
			ID:           row.ID,
			IPAddress:    row.IPAddress,
			UserAgent:    row.UserAgent,
			CreatedAt:    row.CreatedAt,
			LastActivity: row.LastActivity,
			ExpiresAt:    row.ExpiresAt,
			Current:      currentHash != "" && row.TokenHash == currentHash,
		})
	}
	return infos, nil
}
