package activation

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

type deviceReader interface {
	FindByKey(ctx context.Context, deviceKey string) (*models.DeviceActivation, error)
	FindByKeyAndMAC(ctx context.Context, deviceKey, mac string) (*models.DeviceActivation, error)
	FindCurrentByMAC(ctx context.Context, mac string) (*models.DeviceActivation, error)
	KeyExists(ctx context.Context, deviceKey string) (bool, error)
	RecordCheck(ctx context.Context, id uuid.UUID, at time.Time, ip *string) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
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

type txDeviceRepo interface {
	Create(ctx context.Context, device *models.DeviceActivation) error
	KeyExists(ctx context.Context, deviceKey string) (bool, error)
	Update(ctx context.Context, device *models.DeviceActivation) error
	AppendHistory(ctx context.Context, entry *models.DeviceActivationHistory) error
}

type txAccountRepo interface {
	Create(ctx context.Context, user *models.User) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.UserStatus) error
}

type txGrantWriter interface {
	ReplaceGrants(ctx context.Context, userID uuid.UUID, grant entitlements.Grant) error
}

// txRepos bundles the transaction-scoped repositories the activation state
// machine writes through.
type txRepos struct {
	devices  txDeviceRepo
	accounts txAccountRepo
	grants   txGrantWriter
}

type txRepoFactory func(tx *gorm.DB) txRepos

func defaultTxRepos(tx *gorm.DB) txRepos {
	return txRepos{
		devices:  NewRepository(tx),
		accounts: accounts.NewRepository(tx),
		grants:   entitlements.NewRepository(tx),
	}
}

// ServiceParams configure the activation engine.
type ServiceParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Devices       deviceReader
	Plans         planReader
	Resolver      entitlementResolver
	Audit         auditWriter
	Password      config.PasswordConfig
	Provisioning  config.ProvisioningConfig
	Metrics       *metrics.ProvisioningMetrics
	TxRepoFactory txRepoFactory
}

// Service drives the device pairing state machine: anonymous registration,
// operator-authenticated activation (which provisions the playback account),
// unauthenticated status polling with lazy expiry, and operator revocation.
type Service struct {
	logg        *logger.Logger
	db          txRunner
	devices     deviceReader
	plans       planReader
	resolver    entitlementResolver
	audit       auditWriter
	pwCfg       config.PasswordConfig
	provCfg     config.ProvisioningConfig
	metrics     *metrics.ProvisioningMetrics
	repoFactory txRepoFactory
	now         func() time.Time
}

// NewService builds the activation engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Devices == nil {
		return nil, fmt.Errorf("device reader required")
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
		devices:     params.Devices,
		plans:       params.Plans,
		resolver:    params.Resolver,
		audit:       params.Audit,
		pwCfg:       params.Password,
		provCfg:     params.Provisioning,
		metrics:     params.Metrics,
		repoFactory: repoFactory,
		now:         time.Now,
	}, nil
}

// RegisterInput carries the device-provided registration parameters.
type RegisterInput struct {
	MacAddress string
	DeviceInfo json.RawMessage
	ClientIP   *string
}

// RegisterResult is returned to the device after registration. Repeated
// registrations of the same MAC return the same key.
type RegisterResult struct {
	DeviceKey string             `json:"device_key"`
	Status    enums.DeviceStatus `json:"status"`
}

// RegisterDevice pairs a MAC address with a device key. Registration is
// idempotent per MAC: an existing non-deactivated pairing is returned rather
// than minting a fresh key on every boot.
func (s *Service) RegisterDevice(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	mac := NormalizeMAC(input.MacAddress)
	logCtx := s.logg.WithField(ctx, "mac_address", mac)

	existing, err := s.devices.FindCurrentByMAC(ctx, mac)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up device")
	}
	if existing != nil {
		s.logg.Info(s.logg.WithField(logCtx, "status", existing.Status.String()), "device re-registration returned existing key")
		return &RegisterResult{DeviceKey: existing.DeviceKey, Status: existing.Status}, nil
	}

	deviceKey, err := s.uniqueDeviceKey(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating device key")
	}

	var device *models.DeviceActivation
	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repos := s.repoFactory(tx)
		device = &models.DeviceActivation{
			ID:         uuid.New(),
			DeviceKey:  deviceKey,
			MacAddress: mac,
			DeviceInfo: input.DeviceInfo,
			Status:     enums.DeviceStatusPending,
		}
		if err := repos.devices.Create(ctx, device); err != nil {
			return fmt.Errorf("create device: %w", err)
		}
		return repos.devices.AppendHistory(ctx, &models.DeviceActivationHistory{
			ID:                 uuid.New(),
			DeviceActivationID: device.ID,
			Action:             enums.DeviceActionRegistered,
			IPAddress:          input.ClientIP,
		})
	})
	if txErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "registering device")
	}

	s.logg.Info(s.logg.WithField(logCtx, "device_key", deviceKey), "device registered")
	return &RegisterResult{DeviceKey: device.DeviceKey, Status: device.Status}, nil
}

// ActivateInput carries the operator-provided activation parameters.
type ActivateInput struct {
	DeviceKey    string
	PlanID       uuid.UUID
	OperatorID   uuid.UUID
	DurationDays *int
	ClientIP     *string
}

// Credentials is the one-time username/password pair handed to the operator.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ActivateResult is the outcome of a successful activation.
type ActivateResult struct {
	User        *models.User
	Credentials Credentials
	PlanName    string
	ExpiresAt   time.Time
	Grant       entitlements.Grant
}

// Activate binds a pending or expired pairing to a plan, provisioning the
// playback account in the same transaction. An active unexpired pairing is
// rejected rather than silently re-provisioned.
func (s *Service) Activate(ctx context.Context, input ActivateInput) (*ActivateResult, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"device_key":  input.DeviceKey,
		"operator_id": input.OperatorID.String(),
	})

	device, err := s.devices.FindByKey(ctx, input.DeviceKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(logCtx, "activation failed: device key not found")
			s.metrics.IncActivation(metrics.OutcomeInvalid)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "device key not found")
		}
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up device")
	}

	now := s.now().UTC()

	if device.Status == enums.DeviceStatusDeactivated {
		s.logg.Warn(logCtx, "activation failed: device deactivated")
		s.metrics.IncActivation(metrics.OutcomeInvalid)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "device has been deactivated")
	}
	if device.ActiveAt(now) {
		s.logg.Warn(logCtx, "activation failed: device already active")
		s.metrics.IncActivation(metrics.OutcomeInvalid)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "device is already activated")
	}

	plan, err := s.plans.FindPlanByID(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(logCtx, "activation failed: plan not found")
			s.metrics.IncActivation(metrics.OutcomeError)
			return nil, pkgerrors.New(pkgerrors.CodePlanUnavailable, "subscription plan not found")
		}
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up plan")
	}
	if plan.ServerID == nil {
		s.logg.Error(logCtx, "activation failed: no server assigned to plan", nil)
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.New(pkgerrors.CodePlanUnavailable, "plan has no streaming server assigned")
	}

	durationDays := plan.DurationDays
	if input.DurationDays != nil {
		durationDays = *input.DurationDays
	}
	if durationDays <= 0 {
		s.metrics.IncActivation(metrics.OutcomeInvalid)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activation duration must be positive")
	}
	expiresAt := now.AddDate(0, 0, durationDays)

	password, err := keygen.Password(s.passwordLength())
	if err != nil {
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating password")
	}
	passwordHash, err := security.HashPassword(password, s.pwCfg)
	if err != nil {
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	grant, err := s.resolver.Resolve(ctx, plan.ID)
	if err != nil {
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving entitlements")
	}

	priorStatus := device.Status

	var user *models.User
	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repos := s.repoFactory(tx)

		username, err := s.uniqueUsername(ctx, repos.accounts)
		if err != nil {
			return err
		}

		createdVia := "device_activation"
		user = &models.User{
			ID:                uuid.New(),
			Username:          username,
			PasswordHash:      passwordHash,
			Status:            enums.UserStatusActive,
			SubscriptionStart: now,
			SubscriptionEnd:   &expiresAt,
			PlanID:            &plan.ID,
			ServerID:          plan.ServerID,
			MaxDevices:        maxDevicesOrDefault(plan.MaxDevices),
			CreatedVia:        &createdVia,
		}
		if err := repos.accounts.Create(ctx, user); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if err := repos.grants.ReplaceGrants(ctx, user.ID, grant); err != nil {
			return fmt.Errorf("persist entitlements: %w", err)
		}

		device.Status = enums.DeviceStatusActive
		device.PlanID = &plan.ID
		device.UserID = &user.ID
		device.ExpiresAt = &expiresAt
		device.ActivatedBy = &input.OperatorID
		device.ActivatedAt = &now
		if err := repos.devices.Update(ctx, device); err != nil {
			return fmt.Errorf("update device: %w", err)
		}

		details, _ := json.Marshal(map[string]any{
			"previous_status": priorStatus.String(),
			"plan_id":         plan.ID.String(),
			"duration_days":   durationDays,
		})
		return repos.devices.AppendHistory(ctx, &models.DeviceActivationHistory{
			ID:                 uuid.New(),
			DeviceActivationID: device.ID,
			Action:             enums.DeviceActionActivated,
			PerformedBy:        &input.OperatorID,
			Details:            details,
			IPAddress:          input.ClientIP,
		})
	})
	if txErr != nil {
		s.metrics.IncActivation(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "activating device")
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"user_id":    user.ID.String(),
		"expires_at": expiresAt,
	}), "device activated")
	s.metrics.IncActivation(metrics.OutcomeSuccess)
	s.appendAudit(logCtx, audit.Entry{
		UserID:    &user.ID,
		AdminID:   &input.OperatorID,
		Action:    audit.ActionDeviceActivated,
		IPAddress: input.ClientIP,
		Details: map[string]any{
			"device_key":    device.DeviceKey,
			"plan_id":       plan.ID.String(),
			"duration_days": durationDays,
		},
	})

	return &ActivateResult{
		User:        user,
		Credentials: Credentials{Username: user.Username, Password: password},
		PlanName:    plan.Name,
		ExpiresAt:   expiresAt,
		Grant:       grant,
	}, nil
}

// CheckInput carries the device-provided poll parameters.
type CheckInput struct {
	DeviceKey  string
	MacAddress string
	ClientIP   *string
}

// StatusResult is the poll response. Expiry, plan name and entitlements are
// only populated for an active pairing.
type StatusResult struct {
	Status       enums.DeviceStatus  `json:"status"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	PlanName     *string             `json:"plan_name,omitempty"`
	Entitlements *entitlements.Grant `json:"entitlements,omitempty"`
}

// CheckStatus reports the pairing state to a polling device. The key must be
// presented together with the MAC it was registered under; a mismatch is
// indistinguishable from an unknown key. Elapsed expiry is persisted before
// responding so later polls see it without recomputation.
func (s *Service) CheckStatus(ctx context.Context, input CheckInput) (*StatusResult, error) {
	device, err := s.devices.FindByKeyAndMAC(ctx, input.DeviceKey, input.MacAddress)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "device key not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up device")
	}

	now := s.now().UTC()

	// Telemetry only; a failed stamp must not fail the poll.
	if err := s.devices.RecordCheck(ctx, device.ID, now, input.ClientIP); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "device_key", device.DeviceKey), "failed to record status check")
	}

	status := device.Status
	if status == enums.DeviceStatusActive && !device.ActiveAt(now) {
		if err := s.devices.MarkExpired(ctx, device.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expiring device")
		}
		status = enums.DeviceStatusExpired
	}

	s.metrics.IncStatusCheck(status.String())

	if status != enums.DeviceStatusActive {
		return &StatusResult{Status: status}, nil
	}

	grant := entitlements.Grant{}
	var planName *string
	if device.PlanID != nil {
		grant, err = s.resolver.Resolve(ctx, *device.PlanID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving entitlements")
		}
		plan, err := s.plans.FindPlanByID(ctx, *device.PlanID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up plan")
			}
		} else {
			planName = &plan.Name
		}
	}
	return &StatusResult{
		Status:       status,
		ExpiresAt:    device.ExpiresAt,
		PlanName:     planName,
		Entitlements: &grant,
	}, nil
}

// DeactivateInput carries the operator-provided revocation parameters.
type DeactivateInput struct {
	DeviceKey  string
	OperatorID uuid.UUID
	ClientIP   *string
}

// Deactivate revokes a pairing. Deactivation is terminal and cascades to
// suspend the linked playback account, if one was provisioned.
func (s *Service) Deactivate(ctx context.Context, input DeactivateInput) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"device_key":  input.DeviceKey,
		"operator_id": input.OperatorID.String(),
	})

	device, err := s.devices.FindByKey(ctx, input.DeviceKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "device key not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up device")
	}
	if device.Status == enums.DeviceStatusDeactivated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "device is already deactivated")
	}

	priorStatus := device.Status

	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repos := s.repoFactory(tx)

		device.Status = enums.DeviceStatusDeactivated
		if err := repos.devices.Update(ctx, device); err != nil {
			return fmt.Errorf("update device: %w", err)
		}
		if device.UserID != nil {
			if err := repos.accounts.UpdateStatus(ctx, *device.UserID, enums.UserStatusSuspended); err != nil {
				return fmt.Errorf("suspend account: %w", err)
			}
		}

		details, _ := json.Marshal(map[string]any{
			"previous_status": priorStatus.String(),
		})
		return repos.devices.AppendHistory(ctx, &models.DeviceActivationHistory{
			ID:                 uuid.New(),
			DeviceActivationID: device.ID,
			Action:             enums.DeviceActionDeactivated,
			PerformedBy:        &input.OperatorID,
			Details:            details,
			IPAddress:          input.ClientIP,
		})
	})
	if txErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "deactivating device")
	}

	s.logg.Info(logCtx, "device deactivated")
	s.appendAudit(logCtx, audit.Entry{
		UserID:    device.UserID,
		AdminID:   &input.OperatorID,
		Action:    audit.ActionDeviceDeactivated,
		IPAddress: input.ClientIP,
		Details: map[string]any{
			"device_key":      device.DeviceKey,
			"previous_status": priorStatus.String(),
		},
	})
	return nil
}

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

func (s *Service) uniqueDeviceKey(ctx context.Context) (string, error) {
	attempts := s.provCfg.UsernameAttempts
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		key, err := keygen.DeviceKey()
		if err != nil {
			return "", fmt.Errorf("generate device key: %w", err)
		}
		exists, err := s.devices.KeyExists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check device key: %w", err)
		}
		if !exists {
			return key, nil
		}
	}
	return "", fmt.Errorf("device key collision retry budget exhausted after %d attempts", attempts)
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
