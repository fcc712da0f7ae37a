package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/security"
)

type stubStore struct {
	sessions map[string]*models.AdminSession
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]*models.AdminSession)}
}

func (s *stubStore) Create(_ context.Context, session *models.AdminSession) error {
	session.ID = uuid.New()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *stubStore) FindByTokenHash(_ context.Context, hash string) (*models.AdminSession, error) {
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) Touch(_ context.Context, hash string, at time.Time) error {
	if sess, ok := s.sessions[hash]; ok {
		sess.LastActivity = &at
	}
	return nil
}

func (s *stubStore) DeleteByTokenHash(_ context.Context, hash string) error {
	delete(s.sessions, hash)
	return nil
}

func (s *stubStore) DeleteForAdmin(_ context.Context, adminID uuid.UUID, exceptHash string) (int64, error) {
	var deleted int64
	for hash, sess := range s.sessions {
		if sess.AdminID != adminID || hash == exceptHash {
			continue
		}
		delete(s.sessions, hash)
		deleted++
	}
	return deleted, nil
}

func (s *stubStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var deleted int64
	for hash, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubStore) ListForAdmin(_ context.Context, adminID uuid.UUID, now time.Time) ([]models.AdminSession, error) {
	var rows []models.AdminSession
	for _, sess := range s.sessions {
		if sess.AdminID == adminID && sess.ExpiresAt.After(now) {
			rows = append(rows, *sess)
		}
	}
	return rows, nil
}

func TestManagerCreateAndHasSession(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	adminID := uuid.New()
	token, err := security.GenerateOpaqueToken(32)
	require.NoError(t, err)

	require.NoError(t, mgr.Create(ctx, adminID, token, nil, nil, time.Now()))

	ok, err := mgr.HasSession(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only the digest is persisted.
	_, stored := store.sessions[token]
	assert.False(t, stored)
	_, stored = store.sessions[security.HashToken(token)]
	assert.True(t, stored)
}

func TestManagerHasSessionUnknownToken(t *testing.T) {
	mgr, err := NewManager(newStubStore(), time.Hour)
	require.NoError(t, err)

	ok, err := mgr.HasSession(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerHasSessionExpiredRowIsPurged(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	token := "expired-token"
	require.NoError(t, mgr.Create(ctx, uuid.New(), token, nil, nil, time.Now().Add(-2*time.Hour)))

	ok, err := mgr.HasSession(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.sessions)
}

func TestManagerRevoke(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	token := "some-token"
	require.NoError(t, mgr.Create(ctx, uuid.New(), token, nil, nil, time.Now()))
	require.NoError(t, mgr.Revoke(ctx, token))

	ok, err := mgr.HasSession(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerRevokeAllKeepsCurrent(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	adminID := uuid.New()
	now := time.Now()
	require.NoError(t, mgr.Create(ctx, adminID, "token-a", nil, nil, now))
	require.NoError(t, mgr.Create(ctx, adminID, "token-b", nil, nil, now))
	require.NoError(t, mgr.Create(ctx, uuid.New(), "token-other", nil, nil, now))

	deleted, err := mgr.RevokeAll(ctx, adminID, "token-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ok, err := mgr.HasSession(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.HasSession(ctx, "token-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mgr.HasSession(ctx, "token-other")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManagerListForMarksCurrent(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	adminID := uuid.New()
	now := time.Now()
	require.NoError(t, mgr.Create(ctx, adminID, "token-a", nil, nil, now))
	require.NoError(t, mgr.Create(ctx, adminID, "token-b", nil, nil, now))

	infos, err := mgr.ListFor(ctx, adminID, "token-a")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var current int
	for _, info := range infos {
		if info.Current {
			current++
		}
	}
	assert.Equal(t, 1, current)
}

func TestManagerPurgeExpired(t *testing.T) {
	store := newStubStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Create(ctx, uuid.New(), "stale", nil, nil, time.Now().Add(-3*time.Hour)))
	require.NoError(t, mgr.Create(ctx, uuid.New(), "fresh", nil, nil, time.Now()))

	purged, err := mgr.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
