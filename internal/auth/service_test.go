package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/audit"
	pkgauth "github.com/primex-iptv/primex-backend/pkg/auth"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/security"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Issuer:                  "primex",
		AccountSecret:           "account-secret",
		OperatorSecret:          "operator-secret",
		AccountExpirationHours:  24,
		OperatorExpirationHours: 8,
		RefreshSecret:           "refresh-secret",
		RefreshExpirationHours:  168,
	}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubAdminRepo struct {
	admin      *models.AdminUser
	lastLogin  *time.Time
	lastSeenID uuid.UUID
}

func (s *stubAdminRepo) FindByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	if s.admin == nil || s.admin.Username != username {
		return nil, gorm.ErrRecordNotFound
	}
	return s.admin, nil
}

func (s *stubAdminRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastSeenID = id
	s.lastLogin = &at
	return nil
}

type stubAccountRepo struct {
	user *models.User
}

func (s *stubAccountRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubAccountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type stubSessions struct {
	createdTokens []string
	revokedTokens []string
	revokedAllFor []uuid.UUID
	revokeAllN    int64
}

func (s *stubSessions) Create(ctx context.Context, adminID uuid.UUID, token string, ip, userAgent *string, now time.Time) error {
	s.createdTokens = append(s.createdTokens, token)
	return nil
}

func (s *stubSessions) Revoke(ctx context.Context, token string) error {
	s.revokedTokens = append(s.revokedTokens, token)
	return nil
}

func (s *stubSessions) RevokeAll(ctx context.Context, adminID uuid.UUID, keepToken string) (int64, error) {
	s.revokedAllFor = append(s.revokedAllFor, adminID)
	return s.revokeAllN, nil
}

type stubAudit struct {
	entries []audit.Entry
}

func (s *stubAudit) Append(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func buildAuthService(t *testing.T, admins *stubAdminRepo, accounts *stubAccountRepo, sessions *stubSessions, auditLog *stubAudit) Service {
	t.Helper()
	params := ServiceParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		AdminRepo:   admins,
		AccountRepo: accounts,
		Sessions:    sessions,
		JWTConfig:   testJWTConfig(),
	}
	// Assigning a nil *stubAudit would hide the writer behind a non-nil
	// interface; leave the field empty so the audit-less path is the one
	// production sees.
	if auditLog != nil {
		params.Audit = auditLog
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestOperatorLogin(t *testing.T) {
	password := "operator-pass"
	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     "ops",
		PasswordHash: mustHashPassword(t, password),
		Status:       enums.AdminStatusActive,
	}
	admins := &stubAdminRepo{admin: admin}
	sessions := &stubSessions{}
	auditLog := &stubAudit{}
	svc := buildAuthService(t, admins, &stubAccountRepo{}, sessions, auditLog)

	resp, err := svc.OperatorLogin(context.Background(), LoginRequest{Username: "ops", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), enums.PrincipalKindOperator, resp.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.SubjectID != admin.ID {
		t.Fatalf("expected subject %s, got %s", admin.ID, claims.SubjectID)
	}
	if claims.Kind != enums.PrincipalKindOperator {
		t.Fatalf("expected operator kind, got %s", claims.Kind)
	}

	if len(sessions.createdTokens) != 1 || sessions.createdTokens[0] != resp.Token {
		t.Fatalf("expected session opened for the minted token")
	}
	if admins.lastLogin == nil || admins.lastSeenID != admin.ID {
		t.Fatalf("expected last login stamped")
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].Action != audit.ActionAdminLogin {
		t.Fatalf("expected an admin_login audit entry")
	}
}

func TestOperatorLoginRejectsBadCredentialsAndDisabled(t *testing.T) {
	password := "operator-pass"
	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     "ops",
		PasswordHash: mustHashPassword(t, password),
		Status:       enums.AdminStatusActive,
	}
	svc := buildAuthService(t, &stubAdminRepo{admin: admin}, &stubAccountRepo{}, &stubSessions{}, nil)

	for _, req := range []LoginRequest{
		{Username: "ops", Password: "wrong"},
		{Username: "nobody", Password: password},
		{Username: "", Password: password},
	} {
		if _, err := svc.OperatorLogin(context.Background(), req); err == nil {
			t.Fatalf("expected login to fail for %+v", req)
		} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	admin.Status = enums.AdminStatusDisabled
	if _, err := svc.OperatorLogin(context.Background(), LoginRequest{Username: "ops", Password: password}); err == nil {
		t.Fatal("expected disabled operator to be rejected")
	}
}

func TestOperatorLogoutAll(t *testing.T) {
	sessions := &stubSessions{revokeAllN: 3}
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{}, sessions, nil)

	operatorID := uuid.New()
	revoked, err := svc.OperatorLogoutAll(context.Background(), operatorID, "current-token")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", revoked)
	}
	if len(sessions.revokedAllFor) != 1 || sessions.revokedAllFor[0] != operatorID {
		t.Fatalf("expected revocation scoped to the operator")
	}
}

func activeTestUser(t *testing.T, password string) *models.User {
	t.Helper()
	end := time.Now().UTC().Add(30 * 24 * time.Hour)
	return &models.User{
		ID:                uuid.New(),
		Username:          "user_1700000000000_ab12cd34",
		PasswordHash:      mustHashPassword(t, password),
		Status:            enums.UserStatusActive,
		SubscriptionStart: time.Now().UTC().Add(-time.Hour),
		SubscriptionEnd:   &end,
	}
}

func TestAccountLoginIssuesBothTokens(t *testing.T) {
	password := "account-pass"
	user := activeTestUser(t, password)
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{user: user}, &stubSessions{}, &stubAudit{})

	resp, err := svc.AccountLogin(context.Background(), LoginRequest{Username: user.Username, Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), enums.PrincipalKindAccount, resp.Token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Username != user.Username {
		t.Fatalf("expected username claim %q, got %q", user.Username, claims.Username)
	}

	refreshClaims, err := pkgauth.ParseRefreshToken(testJWTConfig(), resp.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if refreshClaims.SubjectID != user.ID {
		t.Fatalf("expected refresh subject %s, got %s", user.ID, refreshClaims.SubjectID)
	}
}

func TestAccountLoginRejectsLapsedSubscription(t *testing.T) {
	password := "account-pass"
	user := activeTestUser(t, password)
	past := time.Now().UTC().Add(-time.Hour)
	user.SubscriptionEnd = &past
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{user: user}, &stubSessions{}, nil)

	_, err := svc.AccountLogin(context.Background(), LoginRequest{Username: user.Username, Password: password})
	if err == nil {
		t.Fatal("expected lapsed subscription to be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	user := activeTestUser(t, "account-pass")
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{user: user}, &stubSessions{}, nil)

	refreshToken, err := pkgauth.MintRefreshToken(testJWTConfig(), time.Now().UTC(), pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}

	resp, err := svc.Refresh(context.Background(), refreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), enums.PrincipalKindAccount, resp.Token)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if claims.SubjectID != user.ID {
		t.Fatalf("expected subject %s, got %s", user.ID, claims.SubjectID)
	}
}

func TestRefreshRejectsAccessTokens(t *testing.T) {
	user := activeTestUser(t, "account-pass")
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{user: user}, &stubSessions{}, nil)

	accessToken, err := pkgauth.MintAccessToken(testJWTConfig(), time.Now().UTC(), pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
		Username:  user.Username,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), accessToken); err == nil {
		t.Fatal("expected access token to be rejected as refresh token")
	}
}

func TestRefreshRejectsSuspendedAccount(t *testing.T) {
	user := activeTestUser(t, "account-pass")
	user.Status = enums.UserStatusSuspended
	svc := buildAuthService(t, &stubAdminRepo{}, &stubAccountRepo{user: user}, &stubSessions{}, nil)

	refreshToken, err := pkgauth.MintRefreshToken(testJWTConfig(), time.Now().UTC(), pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), refreshToken); err == nil {
		t.Fatal("expected suspended account to be rejected")
	}
}
