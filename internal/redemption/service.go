package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/accounts"
	"github.com/primex-iptv/primex-backend/internal/audit"
	"github.com/primex-iptv/primex-backend/internal/entitlements"
	"github.com/primex-iptv/primex-backend/pkg/auth"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/keygen"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/metrics"
	"github.com/primex-iptv/primex-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type codeReader interface {
	FindByCode(ctx context.Context, code string) (*models.RedemptionCode, error)
	MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.CodeStatus) error
}

type planReader interface {
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type entitlementResolver interface {
	Resolve(ctx context.Context, planID uuid.UUID) (entitlements.Grant, error)
}

type auditWriter interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// txRepos bundles the transaction-scoped repositories the redemption unit
// writes through.
type txRepos struct {
	codes    txCodeRepo
	accounts txAccountRepo
	grants   txGrantWriter
}

type txCodeRepo interface {
	TryConsume(ctx context.Context, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionCode, error)
	MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.CodeStatus) error
	InsertUsage(ctx context.Context, usage *models.CodeUsage) error
}

type txAccountRepo interface {
	Create(ctx context.Context, user *models.User) error
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type txGrantWriter interface {
	ReplaceGrants(ctx context.Context, userID uuid.UUID, grant entitlements.Grant) error
}

type txRepoFactory func(tx *gorm.DB) txRepos

func defaultTxRepos(tx *gorm.DB) txRepos {
	return txRepos{
		codes:    NewRepository(tx),
		accounts: accounts.NewRepository(tx),
		grants:   entitlements.NewRepository(tx),
	}
}

// ServiceParams configure the redemption engine.
type ServiceParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Codes         codeReader
	Plans         planReader
	Resolver      entitlementResolver
	Audit         auditWriter
	JWT           config.JWTConfig
	Password      config.PasswordConfig
	Provisioning  config.ProvisioningConfig
	Metrics       *metrics.ProvisioningMetrics
	TxRepoFactory txRepoFactory
}

// Service is the code-redemption engine: it validates a code, atomically
// consumes one use, provisions an account with entitlements, and issues
// session tokens. All persistent effects of a successful redemption happen in
// one transaction; the expired/exhausted status flips of a failed attempt are
// deliberately persisted outside it.
type Service struct {
	logg        *logger.Logger
	db          txRunner
	codes       codeReader
	plans       planReader
	resolver    entitlementResolver
	audit       auditWriter
	jwtCfg      config.JWTConfig
	pwCfg       config.PasswordConfig
	provCfg     config.ProvisioningConfig
	metrics     *metrics.ProvisioningMetrics
	repoFactory txRepoFactory
	now         func() time.Time
}

// NewService builds the redemption engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Codes == nil {
		return nil, fmt.Errorf("code reader required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("entitlement resolver required")
	}
	repoFactory := params.TxRepoFactory
	if repoFactory == nil {
		repoFactory = defaultTxRepos
	}
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		codes:       params.Codes,
		plans:       params.Plans,
		resolver:    params.Resolver,
		audit:       params.Audit,
		jwtCfg:      params.JWT,
		pwCfg:       params.Password,
		provCfg:     params.Provisioning,
		metrics:     params.Metrics,
		repoFactory: repoFactory,
		now:         time.Now,
	}, nil
}

// RedeemInput carries the caller-provided redemption parameters.
type RedeemInput struct {
	Code       string
	DeviceID   *string
	MacAddress *string
	ClientIP   *string
}

// Credentials is the one-time username/password pair returned to the caller.
// The password is never recoverable afterwards.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RedeemResult is the outcome of a successful redemption.
type RedeemResult struct {
	User         *models.User
	Credentials  Credentials
	Token        string
	RefreshToken string
	Grant        entitlements.Grant
}

// Redeem exchanges a subscription code for a freshly provisioned account.
func (s *Service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	normalized := keygen.NormalizeCode(input.Code)
	logCtx := s.logg.WithField(ctx, "code_prefix", codePrefix(normalized))

	code, err := s.codes.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(logCtx, "redemption failed: code not found")
			s.metrics.IncRedemption(metrics.OutcomeInvalid)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid subscription code")
		}
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up code")
	}

	now := s.now().UTC()

	if code.Status != enums.CodeStatusActive {
		s.logg.Warn(s.logg.WithField(logCtx, "status", code.Status.String()), "redemption failed: code not active")
		s.metrics.IncRedemption(metrics.OutcomeInvalid)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "this code is no longer valid")
	}

	// The failed-attempt status flips below are persisted on purpose, outside
	// the provisioning transaction.
	if code.ExpiredAt(now) {
		if err := s.codes.MarkStatus(ctx, code.ID, enums.CodeStatusActive, enums.CodeStatusExpired); err != nil {
			s.logg.Error(logCtx, "failed to persist expired flip", err)
		}
		s.logg.Warn(logCtx, "redemption failed: code expired")
		s.metrics.IncRedemption(metrics.OutcomeExpired)
		return nil, pkgerrors.New(pkgerrors.CodeTokenExpired, "this code has expired")
	}

	if code.Exhausted() {
		if err := s.codes.MarkStatus(ctx, code.ID, enums.CodeStatusActive, enums.CodeStatusUsed); err != nil {
			s.logg.Error(logCtx, "failed to persist used flip", err)
		}
		s.logg.Warn(logCtx, "redemption failed: max uses reached")
		s.metrics.IncRedemption(metrics.OutcomeExhausted)
		return nil, pkgerrors.New(pkgerrors.CodeTokenExhausted, "this code has been fully used")
	}

	plan, err := s.plans.FindPlanByID(ctx, code.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Error(logCtx, "redemption failed: plan not found", nil)
			s.metrics.IncRedemption(metrics.OutcomeError)
			return nil, pkgerrors.New(pkgerrors.CodePlanUnavailable, "subscription plan not found")
		}
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up plan")
	}
	// A code must never provision an account with no delivery server.
	if plan.ServerID == nil {
		s.logg.Error(s.logg.WithField(logCtx, "plan_id", plan.ID.String()), "redemption failed: no server assigned to plan", nil)
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.New(pkgerrors.CodePlanUnavailable, "plan has no streaming server assigned")
	}

	password, err := keygen.Password(s.passwordLength())
	if err != nil {
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating password")
	}
	passwordHash, err := security.HashPassword(password, s.pwCfg)
	if err != nil {
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	// Plan duration takes precedence; the code's own duration is the fallback
	// for plans created without one.
	durationDays := plan.DurationDays
	if durationDays <= 0 {
		durationDays = code.DurationDays
	}
	subscriptionEnd := now.AddDate(0, 0, durationDays)

	grant, err := s.resolver.Resolve(ctx, plan.ID)
	if err != nil {
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving entitlements")
	}

	var user *models.User
	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repos := s.repoFactory(tx)

		consumed, err := repos.codes.TryConsume(ctx, code.ID)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if !consumed {
			return errExhaustedInTx
		}

		username, err := s.uniqueUsername(ctx, repos.accounts)
		if err != nil {
			return err
		}

		createdVia := "code_redemption"
		user = &models.User{
			ID:                uuid.New(),
			Username:          username,
			PasswordHash:      passwordHash,
			Status:            enums.UserStatusActive,
			SubscriptionStart: now,
			SubscriptionEnd:   &subscriptionEnd,
			PlanID:            &plan.ID,
			ServerID:          plan.ServerID,
			MaxDevices:        maxDevicesOrDefault(plan.MaxDevices),
			CreatedVia:        &createdVia,
		}
		if err := repos.accounts.Create(ctx, user); err != nil {
			return fmt.Errorf("create account: %w", err)
		}

		consumedCode, err := repos.codes.FindByID(ctx, code.ID)
		if err != nil {
			return fmt.Errorf("reread code: %w", err)
		}
		if consumedCode.Exhausted() {
			if err := repos.codes.MarkStatus(ctx, code.ID, enums.CodeStatusActive, enums.CodeStatusUsed); err != nil {
				return fmt.Errorf("flip code to used: %w", err)
			}
		}

		if err := repos.grants.ReplaceGrants(ctx, user.ID, grant); err != nil {
			return fmt.Errorf("persist entitlements: %w", err)
		}

		usage := &models.CodeUsage{
			ID:        uuid.New(),
			CodeID:    code.ID,
			UserID:    user.ID,
			IPAddress: input.ClientIP,
		}
		if err := repos.codes.InsertUsage(ctx, usage); err != nil {
			return fmt.Errorf("record code usage: %w", err)
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, errExhaustedInTx) {
			// Lost the race to another redemption. Persist the flip and fail
			// like the pre-check would have.
			if err := s.codes.MarkStatus(ctx, code.ID, enums.CodeStatusActive, enums.CodeStatusUsed); err != nil {
				s.logg.Error(logCtx, "failed to persist used flip", err)
			}
			s.logg.Warn(logCtx, "redemption failed: max uses reached")
			s.metrics.IncRedemption(metrics.OutcomeExhausted)
			return nil, pkgerrors.New(pkgerrors.CodeTokenExhausted, "this code has been fully used")
		}
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "redeeming code")
	}

	token, err := auth.MintAccessToken(s.jwtCfg, now, auth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
		Username:  user.Username,
	})
	if err != nil {
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}
	refreshToken, err := auth.MintRefreshToken(s.jwtCfg, now, auth.AccessTokenPayload{
		SubjectID: user.ID,
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		s.metrics.IncRedemption(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting refresh token")
	}

	successCtx := s.logg.WithFields(logCtx, map[string]any{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})
	s.logg.Info(successCtx, "code redemption successful")
	s.metrics.IncRedemption(metrics.OutcomeSuccess)
	s.appendAudit(successCtx, audit.Entry{
		UserID:    &user.ID,
		Action:    audit.ActionCodeRedeemed,
		IPAddress: input.ClientIP,
		Details: map[string]any{
			"code_id":      code.ID.String(),
			"entitlements": GrantDetails(grant),
		},
	})

	return &RedeemResult{
		User:         user,
		Credentials:  Credentials{Username: user.Username, Password: password},
		Token:        token,
		RefreshToken: refreshToken,
		Grant:        grant,
	}, nil
}

var errExhaustedInTx = errors.New("code exhausted during consume")

// appendAudit records an activity row when an audit writer is configured.
// Failures are logged and never surfaced to the caller.
func (s *Service) appendAudit(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logg.Warn(ctx, "failed to append audit entry")
	}
}

func (s *Service) uniqueUsername(ctx context.Context, repo txAccountRepo) (string, error) {
	attempts := s.provCfg.UsernameAttempts
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		username, err := keygen.Username()
		if err != nil {
			return "", fmt.Errorf("generate username: %w", err)
		}
		exists, err := repo.UsernameExists(ctx, username)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !exists {
			return username, nil
		}
	}
	return "", fmt.Errorf("username collision retry budget exhausted after %d attempts", attempts)
}

func (s *Service) passwordLength() int {
	if s.provCfg.PasswordLength > 0 {
		return s.provCfg.PasswordLength
	}
	return 12
}

func maxDevicesOrDefault(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func codePrefix(code string) string {
	if len(code) <= 8 {
		return code
	}
	return code[:8] + "..."
}

// GrantDetails renders a grant as a JSON payload for history/audit rows.
func GrantDetails(grant entitlements.Grant) json.RawMessage {
	payload, err := json.Marshal(map[string]any{
		"channel_ids":  grant.ChannelIDs,
		"category_ids": grant.CategoryIDs,
	})
	if err != nil {
		return nil
	}
	return payload
}
