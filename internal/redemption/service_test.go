package redemption

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/audit"
	"github.com/primex-iptv/primex-backend/internal/catalog"
	"github.com/primex-iptv/primex-backend/internal/entitlements"
	"github.com/primex-iptv/primex-backend/pkg/auth"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/security"
)

var serviceTestDDL = []string{
	`CREATE TABLE IF NOT EXISTS plans (
	  id TEXT PRIMARY KEY,
	  name TEXT NOT NULL,
	  duration_days INTEGER NOT NULL,
	  price TEXT NOT NULL,
	  max_devices INTEGER NOT NULL DEFAULT 1,
	  server_id TEXT,
	  status TEXT NOT NULL DEFAULT 'active',
	  created_at DATETIME,
	  updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS subscription_codes (
	  id TEXT PRIMARY KEY,
	  code TEXT NOT NULL UNIQUE,
	  source_name TEXT,
	  duration_days INTEGER NOT NULL,
	  max_uses INTEGER NOT NULL DEFAULT 1,
	  used_count INTEGER NOT NULL DEFAULT 0,
	  status TEXT NOT NULL DEFAULT 'active',
	  expires_at DATETIME,
	  plan_id TEXT NOT NULL,
	  created_by TEXT,
	  created_at DATETIME,
	  updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS users (
	  id TEXT PRIMARY KEY,
	  username TEXT NOT NULL UNIQUE,
	  password_hash TEXT NOT NULL,
	  email TEXT,
	  status TEXT NOT NULL DEFAULT 'active',
	  subscription_start DATETIME NOT NULL,
	  subscription_end DATETIME,
	  plan_id TEXT,
	  server_id TEXT,
	  max_devices INTEGER NOT NULL DEFAULT 1,
	  created_via TEXT,
	  last_login_at DATETIME,
	  created_at DATETIME,
	  updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS categories (
	  id TEXT PRIMARY KEY,
	  name TEXT NOT NULL,
	  status TEXT NOT NULL DEFAULT 'active',
	  created_at DATETIME,
	  updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS channels (
	  id TEXT PRIMARY KEY,
	  name TEXT NOT NULL,
	  category_id TEXT,
	  stream_url TEXT NOT NULL,
	  status TEXT NOT NULL DEFAULT 'active',
	  created_at DATETIME,
	  updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS plan_channels (
	  plan_id TEXT NOT NULL,
	  channel_id TEXT NOT NULL,
	  PRIMARY KEY (plan_id, channel_id)
	);`,
	`CREATE TABLE IF NOT EXISTS plan_categories (
	  plan_id TEXT NOT NULL,
	  category_id TEXT NOT NULL,
	  PRIMARY KEY (plan_id, category_id)
	);`,
	`CREATE TABLE IF NOT EXISTS user_channels (
	  user_id TEXT NOT NULL,
	  channel_id TEXT NOT NULL,
	  PRIMARY KEY (user_id, channel_id)
	);`,
	`CREATE TABLE IF NOT EXISTS user_categories (
	  user_id TEXT NOT NULL,
	  category_id TEXT NOT NULL,
	  PRIMARY KEY (user_id, category_id)
	);`,
	`CREATE TABLE IF NOT EXISTS code_usages (
	  id TEXT PRIMARY KEY,
	  code_id TEXT NOT NULL,
	  user_id TEXT NOT NULL,
	  ip_address TEXT,
	  activated_at DATETIME
	);`,
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Append(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type serviceHarness struct {
	db       *gorm.DB
	service  *Service
	auditLog *recordingAudit
}

func newServiceHarness(t *testing.T, factory txRepoFactory) *serviceHarness {
	t.Helper()

	dsn := "file:redemption_service_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, ddl := range serviceTestDDL {
		require.NoError(t, db.Exec(ddl).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "test"})
	resolver, err := entitlements.NewResolver(entitlements.ResolverParams{
		Logger: logg,
		Repo:   entitlements.NewRepository(db),
	})
	require.NoError(t, err)

	auditLog := &recordingAudit{}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       gormTxRunner{db: db},
		Codes:    NewRepository(db),
		Plans:    catalog.NewRepository(db),
		Resolver: resolver,
		Audit:    auditLog,
		JWT: config.JWTConfig{
			Issuer:                  "primex",
			AccountSecret:           "account-secret",
			OperatorSecret:          "operator-secret",
			AccountExpirationHours:  24,
			OperatorExpirationHours: 8,
			RefreshSecret:           "refresh-secret",
			RefreshExpirationHours:  168,
		},
		Password: config.PasswordConfig{
			ArgonMemoryKB:    8192,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		Provisioning:  config.ProvisioningConfig{UsernameAttempts: 5, PasswordLength: 12},
		TxRepoFactory: factory,
	})
	require.NoError(t, err)

	return &serviceHarness{db: db, service: service, auditLog: auditLog}
}

func (h *serviceHarness) seedPlan(t *testing.T, durationDays int, withServer bool) models.Plan {
	t.Helper()
	plan := models.Plan{
		ID:           uuid.New(),
		Name:         "Premium",
		DurationDays: durationDays,
		Price:        decimal.NewFromInt(20),
		MaxDevices:   2,
		Status:       enums.ContentStatusActive,
	}
	if withServer {
		serverID := uuid.New()
		plan.ServerID = &serverID
	}
	require.NoError(t, h.db.Create(&plan).Error)
	return plan
}

func (h *serviceHarness) seedCode(t *testing.T, planID uuid.UUID, maxUses int, expiresAt *time.Time) models.RedemptionCode {
	t.Helper()
	code := models.RedemptionCode{
		ID:           uuid.New(),
		Code:         "SVCT-" + uuid.NewString()[:13],
		DurationDays: 30,
		MaxUses:      maxUses,
		Status:       enums.CodeStatusActive,
		ExpiresAt:    expiresAt,
		PlanID:       planID,
	}
	require.NoError(t, h.db.Create(&code).Error)
	return code
}

func (h *serviceHarness) seedChannelMapping(t *testing.T, planID uuid.UUID) uuid.UUID {
	t.Helper()
	channel := models.Channel{
		ID:        uuid.New(),
		Name:      "Sports One",
		StreamURL: "http://stream.local/sports-one",
		Status:    enums.ContentStatusActive,
	}
	require.NoError(t, h.db.Create(&channel).Error)
	require.NoError(t, h.db.Create(&models.PlanChannel{PlanID: planID, ChannelID: channel.ID}).Error)
	return channel.ID
}

func TestRedeemProvisionsAccount(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 90, true)
	channelID := h.seedChannelMapping(t, plan.ID)
	code := h.seedCode(t, plan.ID, 2, nil)
	ip := "203.0.113.9"

	result, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code, ClientIP: &ip})
	require.NoError(t, err)
	require.NotNil(t, result.User)

	assert.NotEmpty(t, result.Credentials.Username)
	assert.NotEmpty(t, result.Credentials.Password)
	assert.Equal(t, result.User.Username, result.Credentials.Username)

	ok, err := security.VerifyPassword(result.Credentials.Password, result.User.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok, "returned password must verify against the stored hash")

	// Plan duration wins over the code's own duration.
	require.NotNil(t, result.User.SubscriptionEnd)
	wantEnd := result.User.SubscriptionStart.AddDate(0, 0, 90)
	assert.WithinDuration(t, wantEnd, *result.User.SubscriptionEnd, time.Second)
	assert.Equal(t, plan.MaxDevices, result.User.MaxDevices)
	require.NotNil(t, result.User.ServerID)
	assert.Equal(t, *plan.ServerID, *result.User.ServerID)

	claims, err := auth.ParseAccessToken(h.service.jwtCfg, enums.PrincipalKindAccount, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.SubjectID)

	refresh, err := auth.ParseRefreshToken(h.service.jwtCfg, result.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, refresh.SubjectID)

	reread, err := NewRepository(h.db).FindByID(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reread.UsedCount)
	assert.Equal(t, enums.CodeStatusActive, reread.Status, "a partially used code stays active")

	grant, err := entitlements.NewRepository(h.db).GrantsFor(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{channelID}, grant.ChannelIDs)

	usages, err := NewRepository(h.db).UsagesForCode(ctx, code.ID)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, result.User.ID, usages[0].UserID)
	require.NotNil(t, usages[0].IPAddress)
	assert.Equal(t, ip, *usages[0].IPAddress)

	require.Len(t, h.auditLog.entries, 1)
	assert.Equal(t, audit.ActionCodeRedeemed, h.auditLog.entries[0].Action)
	require.NotNil(t, h.auditLog.entries[0].UserID)
	assert.Equal(t, result.User.ID, *h.auditLog.entries[0].UserID)
}

func TestRedeemFallsBackToCodeDuration(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 0, true)
	code := h.seedCode(t, plan.ID, 1, nil)

	result, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.NoError(t, err)

	require.NotNil(t, result.User.SubscriptionEnd)
	wantEnd := result.User.SubscriptionStart.AddDate(0, 0, code.DurationDays)
	assert.WithinDuration(t, wantEnd, *result.User.SubscriptionEnd, time.Second)
}

func TestRedeemFinalUseFlipsCodeToUsed(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 30, true)
	code := h.seedCode(t, plan.ID, 1, nil)

	_, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.NoError(t, err)

	reread, err := NewRepository(h.db).FindByID(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reread.UsedCount)
	assert.Equal(t, enums.CodeStatusUsed, reread.Status)

	_, err = h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code(), "a used code is rejected before the counter check")
}

func TestRedeemNormalizesCodeInput(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 30, true)
	code := models.RedemptionCode{
		ID:           uuid.New(),
		Code:         "ABCD-EFGH-JKLM-NPQR",
		DurationDays: 30,
		MaxUses:      1,
		Status:       enums.CodeStatusActive,
		PlanID:       plan.ID,
	}
	require.NoError(t, h.db.Create(&code).Error)

	_, err := h.service.Redeem(ctx, RedeemInput{Code: "  abcd-efgh-jklm-npqr  "})
	require.NoError(t, err)
}

func TestRedeemUnknownCode(t *testing.T) {
	h := newServiceHarness(t, nil)

	_, err := h.service.Redeem(context.Background(), RedeemInput{Code: "ZZZZ-ZZZZ-ZZZZ-ZZZZ"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRedeemExpiredCodePersistsFlip(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 30, true)
	past := time.Now().UTC().Add(-time.Hour)
	code := h.seedCode(t, plan.ID, 1, &past)

	_, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeTokenExpired, typed.Code())

	// The expired flip survives the failed attempt.
	reread, err := NewRepository(h.db).FindByID(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CodeStatusExpired, reread.Status)
	assert.Equal(t, 0, reread.UsedCount)
}

func TestRedeemPlanWithoutServerRejected(t *testing.T) {
	h := newServiceHarness(t, nil)
	ctx := context.Background()

	plan := h.seedPlan(t, 30, false)
	code := h.seedCode(t, plan.ID, 1, nil)

	_, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePlanUnavailable, typed.Code())

	// Nothing is consumed when provisioning is impossible.
	reread, err := NewRepository(h.db).FindByID(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reread.UsedCount)
}

func TestRedeemRollsBackOnGrantFailure(t *testing.T) {
	factory := func(tx *gorm.DB) txRepos {
		repos := defaultTxRepos(tx)
		repos.grants = failingGrantWriter{}
		return repos
	}
	h := newServiceHarness(t, factory)
	ctx := context.Background()

	plan := h.seedPlan(t, 30, true)
	code := h.seedCode(t, plan.ID, 1, nil)

	_, err := h.service.Redeem(ctx, RedeemInput{Code: code.Code})
	require.Error(t, err)

	var userCount int64
	require.NoError(t, h.db.Model(&models.User{}).Count(&userCount).Error)
	assert.Zero(t, userCount, "a failed redemption must not leave an account behind")

	reread, err := NewRepository(h.db).FindByID(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reread.UsedCount, "a failed redemption must not consume a use")
	assert.Equal(t, enums.CodeStatusActive, reread.Status)

	usages, err := NewRepository(h.db).UsagesForCode(ctx, code.ID)
	require.NoError(t, err)
	assert.Empty(t, usages)
}

type failingGrantWriter struct{}

func (failingGrantWriter) ReplaceGrants(ctx context.Context, userID uuid.UUID, grant entitlements.Grant) error {
	return assert.AnError
}

// Concurrency is exercised against in-memory stubs: the conditional-update
// repo test covers the SQL side, this covers the engine treating a lost
// consume race exactly like a pre-check exhaustion.
func TestRedeemConcurrentSingleUse(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	planID := uuid.New()
	serverID := uuid.New()
	codeID := uuid.New()
	code := &models.RedemptionCode{
		ID:           codeID,
		Code:         "RACE-RACE-RACE-RACE",
		DurationDays: 30,
		MaxUses:      1,
		Status:       enums.CodeStatusActive,
		PlanID:       planID,
	}

	var remaining int32 = 1
	var created int32
	stubs := &raceStubs{code: code, remaining: &remaining, created: &created}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       stubTxRunner{},
		Codes:    stubs,
		Plans:    stubPlanReader{plan: &models.Plan{ID: planID, DurationDays: 30, MaxDevices: 1, ServerID: &serverID}},
		Resolver: stubResolver{},
		JWT: config.JWTConfig{
			Issuer:                 "primex",
			AccountSecret:          "account-secret",
			OperatorSecret:         "operator-secret",
			AccountExpirationHours: 24,
			RefreshSecret:          "refresh-secret",
			RefreshExpirationHours: 168,
		},
		Password: config.PasswordConfig{
			ArgonMemoryKB:    8192,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		TxRepoFactory: func(tx *gorm.DB) txRepos {
			return txRepos{codes: stubs, accounts: stubs, grants: stubs}
		},
	})
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	var successes int32
	var exhausted int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Redeem(context.Background(), RedeemInput{Code: code.Code})
			if err == nil {
				atomic.AddInt32(&successes, 1)
				return
			}
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeTokenExhausted {
				atomic.AddInt32(&exhausted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes, "exactly one racer may win a single-use code")
	assert.Equal(t, int32(attempts-1), exhausted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&created), "exactly one account may be provisioned")
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type raceStubs struct {
	code      *models.RedemptionCode
	remaining *int32
	created   *int32
}

func (s *raceStubs) FindByCode(ctx context.Context, code string) (*models.RedemptionCode, error) {
	copied := *s.code
	return &copied, nil
}

func (s *raceStubs) FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionCode, error) {
	copied := *s.code
	copied.UsedCount = copied.MaxUses
	return &copied, nil
}

func (s *raceStubs) TryConsume(ctx context.Context, id uuid.UUID) (bool, error) {
	return atomic.AddInt32(s.remaining, -1) >= 0, nil
}

func (s *raceStubs) MarkStatus(ctx context.Context, id uuid.UUID, from, to enums.CodeStatus) error {
	return nil
}

func (s *raceStubs) InsertUsage(ctx context.Context, usage *models.CodeUsage) error {
	return nil
}

func (s *raceStubs) Create(ctx context.Context, user *models.User) error {
	atomic.AddInt32(s.created, 1)
	return nil
}

func (s *raceStubs) UsernameExists(ctx context.Context, username string) (bool, error) {
	return false, nil
}

func (s *raceStubs) ReplaceGrants(ctx context.Context, userID uuid.UUID, grant entitlements.Grant) error {
	return nil
}

type stubPlanReader struct {
	plan *models.Plan
}

func (s stubPlanReader) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.plan, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, planID uuid.UUID) (entitlements.Grant, error) {
	return entitlements.Grant{ChannelIDs: []uuid.UUID{uuid.New()}}, nil
}
