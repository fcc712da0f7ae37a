package codes

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/internal/audit"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/keygen"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planReader interface {
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type inventory interface {
	InsertBatch(ctx context.Context, batch []models.RedemptionCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RedemptionCode, error)
	List(ctx context.Context, filter Filter, params pagination.Params) ([]models.RedemptionCode, pagination.Meta, error)
	ListAll(ctx context.Context, filter Filter) ([]models.RedemptionCode, error)
	Updates(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteUnused(ctx context.Context, ids []uuid.UUID) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	UsagesForCode(ctx context.Context, codeID uuid.UUID) ([]models.CodeUsage, error)
}

type auditWriter interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// ServiceParams configure the code-management service.
type ServiceParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Inventory    inventory
	Plans        planReader
	Audit        auditWriter
	Provisioning config.ProvisioningConfig
}

// Service is the operator-facing code inventory: bulk generation, listing,
// stats, edits, deletion and CSV export.
type Service struct {
	logg      *logger.Logger
	db        txRunner
	inventory inventory
	plans     planReader
	audit     auditWriter
	provCfg   config.ProvisioningConfig
}

// NewService builds the code-management service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	return &Service{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		plans:     params.Plans,
		audit:     params.Audit,
		provCfg:   params.Provisioning,
	}, nil
}

// GenerateInput carries batch-generation parameters.
type GenerateInput struct {
	Count      int
	PlanID     uuid.UUID
	SourceName *string
	MaxUses    int
	ExpiresAt  *time.Time
	OperatorID uuid.UUID
}

// GenerateResult is the freshly minted batch.
type GenerateResult struct {
	Codes []string `json:"codes"`
	Count int      `json:"count"`
}

// Generate mints a batch of codes against a plan. The plan's duration is
// snapshotted onto each code so later plan edits do not change what a sold
// code is worth.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	batchMax := s.provCfg.CodeBatchMax
	if batchMax <= 0 {
		batchMax = 1000
	}
	if input.Count < 1 || input.Count > batchMax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("count must be between 1 and %d", batchMax))
	}
	maxUses := input.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	plan, err := s.plans.FindPlanByID(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePlanUnavailable, "subscription plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up plan")
	}

	batch := make([]models.RedemptionCode, 0, input.Count)
	minted := make([]string, 0, input.Count)
	for i := 0; i < input.Count; i++ {
		code, err := keygen.RedemptionCode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating code")
		}
		minted = append(minted, code)
		batch = append(batch, models.RedemptionCode{
			ID:           uuid.New(),
			Code:         code,
			SourceName:   input.SourceName,
			DurationDays: plan.DurationDays,
			MaxUses:      maxUses,
			Status:       enums.CodeStatusActive,
			ExpiresAt:    input.ExpiresAt,
			PlanID:       plan.ID,
			CreatedBy:    &input.OperatorID,
		})
	}

	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := NewRepository(tx).InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		if s.audit == nil {
			return nil
		}
		return audit.NewRepository(tx).Append(ctx, audit.Entry{
			AdminID: &input.OperatorID,
			Action:  audit.ActionCodesGenerated,
			Details: map[string]any{
				"count":       input.Count,
				"plan_id":     plan.ID.String(),
				"source_name": input.SourceName,
			},
		})
	})
	if txErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "generating codes")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"count":       input.Count,
		"plan_id":     plan.ID.String(),
		"operator_id": input.OperatorID.String(),
	}), "code batch generated")

	return &GenerateResult{Codes: minted, Count: len(minted)}, nil
}

// CodeDetail is a code row together with its redemption history.
type CodeDetail struct {
	Code         *models.RedemptionCode `json:"code"`
	UsageHistory []models.CodeUsage     `json:"usage_history"`
}

// Get loads one code with its usage history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CodeDetail, error) {
	code, err := s.inventory.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up code")
	}
	usages, err := s.inventory.UsagesForCode(ctx, code.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading usage history")
	}
	return &CodeDetail{Code: code, UsageHistory: usages}, nil
}

// List returns codes under the given filter.
func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) ([]models.RedemptionCode, pagination.Meta, error) {
	codesList, meta, err := s.inventory.List(ctx, filter, params)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing codes")
	}
	return codesList, meta, nil
}

// Stats aggregates the inventory counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.inventory.Stats(ctx)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating code stats")
	}
	return stats, nil
}

// UpdateInput patches a code; nil fields are left untouched.
type UpdateInput struct {
	Status     *enums.CodeStatus
	MaxUses    *int
	ExpiresAt  *time.Time
	SourceName *string
}

// Update edits the mutable fields of a code. Flipping a code back to active
// once used is refused, as is lowering max_uses below what was consumed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) error {
	code, err := s.inventory.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up code")
	}

	updates := map[string]any{}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid code status")
		}
		if code.Status == enums.CodeStatusUsed && *input.Status == enums.CodeStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a used code cannot be reactivated")
		}
		updates["status"] = *input.Status
	}
	if input.MaxUses != nil {
		if *input.MaxUses < code.UsedCount {
			return pkgerrors.New(pkgerrors.CodeValidation, "max uses cannot be lower than the current use count")
		}
		updates["max_uses"] = *input.MaxUses
	}
	if input.ExpiresAt != nil {
		updates["expires_at"] = *input.ExpiresAt
	}
	if input.SourceName != nil {
		updates["source_name"] = *input.SourceName
	}
	if len(updates) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if err := s.inventory.Updates(ctx, id, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating code")
	}
	return nil
}

// Disable flips a code to disabled so it can no longer be redeemed.
func (s *Service) Disable(ctx context.Context, id uuid.UUID) error {
	status := enums.CodeStatusDisabled
	return s.Update(ctx, id, UpdateInput{Status: &status})
}

// Delete removes a code. A code that was ever redeemed stays, for audit.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	code, err := s.inventory.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up code")
	}
	if code.Status == enums.CodeStatusUsed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot delete a used code")
	}
	if err := s.inventory.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting code")
	}
	return nil
}

// BulkDelete removes the given codes, silently skipping used ones. Returns
// the number actually deleted.
func (s *Service) BulkDelete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "no code ids provided")
	}
	deleted, err := s.inventory.DeleteUnused(ctx, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting codes")
	}
	return deleted, nil
}

// ExportCSV streams the filtered inventory as CSV.
func (s *Service) ExportCSV(ctx context.Context, filter Filter, w io.Writer) error {
	codesList, err := s.inventory.ListAll(ctx, filter)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading codes for export")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Code", "Source", "Duration (Days)", "Status", "Created At"}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing export header")
	}
	for _, code := range codesList {
		source := ""
		if code.SourceName != nil {
			source = *code.SourceName
		}
		record := []string{
			code.Code,
			source,
			strconv.Itoa(code.DurationDays),
			code.Status.String(),
			code.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing export row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flushing export")
	}
	return nil
}
