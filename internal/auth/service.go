package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	OperatorLogin(ctx context.Context, req LoginRequest) (*OperatorLoginResponse, error)
	OperatorLogout(ctx context.Context, operatorID uuid.UUID, token string) error
	OperatorLogoutAll(ctx context.Context, operatorID uuid.UUID, currentToken string) (int64, error)
	AccountLogin(ctx context.Context, req LoginRequest) (*AccountLoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error)
}

type adminRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type accountRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Create(ctx context.Context, adminID uuid.UUID, token string, ip, userAgent *string, now time.Time) error
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, adminID uuid.UUID, keepToken string) (int64, error)
}

type auditWriter interface {
	Append(ctx context.Context, entry audit.Entry) error
}

type service struct {
	logg     *logger.Logger
	admins   adminRepository
	accounts accountRepository
	sessions sessionManager
	audit    auditWriter
	jwtCfg   config.JWTConfig
	now      func() time.Time
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Logger      *logger.Logger
	AdminRepo   adminRepository
	AccountRepo accountRepository
	Sessions    sessionManager
	Audit       auditWriter
	JWTConfig   config.JWTConfig
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.AdminRepo == nil {
		return nil, fmt.Errorf("admin repository required")
	}
	if params.AccountRepo == nil {
		return nil, fmt.Errorf("account repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	return &service{
		logg:     params.Logger,
		admins:   params.AdminRepo,
		accounts: params.AccountRepo,
		sessions: params.Sessions,
		audit:    params.Audit,
		jwtCfg:   params.JWTConfig,
		now:      time.Now,
	}, nil
}

// LoginRequest carries login credentials plus request telemetry.
type LoginRequest struct {
	Username  string
	Password  string
	IPAddress *string
	UserAgent *string
}

// OperatorLoginResponse is returned to a successfully signed-in operator.
type OperatorLoginResponse struct {
	Token    string            `json:"token"`
	Operator *models.AdminUser `json:"operator"`
}

// AccountLoginResponse is returned to a successfully signed-in account.
type AccountLoginResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// RefreshResponse carries a freshly minted access token.
type RefreshResponse struct {
	Token string `json:"token"`
}

// OperatorLogin authenticates an operator and opens a revocable session for
// the minted token.
func (s *service) OperatorLogin(ctx context.Context, req LoginRequest) (*OperatorLoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	admin, err := s.admins.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup operator")
	}

	valid, err := security.VerifyPassword(req.Password, admin.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || admin.Status != enums.AdminStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.now().UTC()
	token, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		SubjectID: admin.ID,
		Kind:      enums.PrincipalKindOperator,
		Username:  admin.Username,
		JTI:       uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Create(ctx, admin.ID, token, req.IPAddress, req.UserAgent, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open session")
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.logg.Warn(s.logg.WithOperatorID(ctx, admin.ID.String()), "failed to stamp operator last login")
	}
	s.appendAudit(ctx, audit.Entry{AdminID: &admin.ID, Action: audit.ActionAdminLogin, IPAddress: req.IPAddress})

	s.logg.Info(s.logg.WithOperatorID(ctx, admin.ID.String()), "operator signed in")
	return &OperatorLoginResponse{Token: token, Operator: admin}, nil
}

// OperatorLogout revokes the presented session.
func (s *service) OperatorLogout(ctx context.Context, operatorID uuid.UUID, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	s.appendAudit(ctx, audit.Entry{AdminID: &operatorID, Action: audit.ActionAdminLogout})
	return nil
}

// OperatorLogoutAll revokes every session of the operator except the one the
// call was made with. Returns the number of sessions closed.
func (s *service) OperatorLogoutAll(ctx context.Context, operatorID uuid.UUID, currentToken string) (int64, error) {
	revoked, err := s.sessions.RevokeAll(ctx, operatorID, currentToken)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke sessions")
	}
	s.appendAudit(ctx, audit.Entry{AdminID: &operatorID, Action: audit.ActionAdminLogout, Details: map[string]any{"revoked": revoked}})
	return revoked, nil
}

// AccountLogin authenticates a provisioned playback account with its
// generated credentials.
func (s *service) AccountLogin(ctx context.Context, req LoginRequest) (*AccountLoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	user, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	valid, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.now().UTC()
	if err := s.checkAccountUsable(user, now); err != nil {
		return nil, err
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
		Username:  user.Username,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := pkgauth.MintRefreshToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint refresh jwt")
	}

	if err := s.accounts.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logg.Warn(s.logg.WithAccountID(ctx, user.ID.String()), "failed to stamp account last login")
	}
	s.appendAudit(ctx, audit.Entry{UserID: &user.ID, Action: audit.ActionUserLogin, IPAddress: req.IPAddress})

	return &AccountLoginResponse{Token: token, RefreshToken: refreshToken, User: user}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself stays valid until it expires.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	claims, err := pkgauth.ParseRefreshToken(s.jwtCfg, refreshToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	user, err := s.accounts.FindByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	now := s.now().UTC()
	if err := s.checkAccountUsable(user, now); err != nil {
		return nil, err
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
		Username:  user.Username,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &RefreshResponse{Token: token}, nil
}

func (s *service) checkAccountUsable(user *models.User, now time.Time) error {
	if user.Status != enums.UserStatusActive {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account is not active")
	}
	if !user.SubscriptionActive(now) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "subscription has expired")
	}
	return nil
}

func (s *service) appendAudit(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logg.Warn(ctx, "failed to append activity log")
	}
}
