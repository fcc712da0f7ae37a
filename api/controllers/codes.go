package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/codes"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

type codesGenerateRequest struct {
	Count      int        `json:"count" validate:"required,min=1"`
	PlanID     string     `json:"plan_id" validate:"required,uuid"`
	SourceName *string    `json:"source_name,omitempty" validate:"omitempty,max=128"`
	MaxUses    int        `json:"max_uses,omitempty" validate:"omitempty,min=1,max=1000"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type codeUpdateRequest struct {
	Status     *string    `json:"status,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty" validate:"omitempty,min=1,max=1000"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	SourceName *string    `json:"source_name,omitempty" validate:"omitempty,max=128"`
}

type codesBulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// AdminCodesGenerate mints a batch of subscription codes against a plan.
func AdminCodesGenerate(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codesGenerateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		planID, err := uuid.Parse(body.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan id"))
			return
		}

		result, err := svc.Generate(r.Context(), codes.GenerateInput{
			Count:      body.Count,
			PlanID:     planID,
			SourceName: body.SourceName,
			MaxUses:    body.MaxUses,
			ExpiresAt:  body.ExpiresAt,
			OperatorID: operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AdminCodesList pages through the code inventory.
func AdminCodesList(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := codeFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, meta, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"codes":      list,
			"pagination": meta,
		})
	}
}

// AdminCodeStats summarizes the inventory for the dashboard.
func AdminCodeStats(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}

// AdminCodeGet loads one code with its usage history.
func AdminCodeGet(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, detail)
	}
}

// AdminCodeUpdate patches the mutable fields of a code.
func AdminCodeUpdate(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codeUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := codes.UpdateInput{
			MaxUses:    body.MaxUses,
			ExpiresAt:  body.ExpiresAt,
			SourceName: body.SourceName,
		}
		if body.Status != nil {
			status := enums.CodeStatus(*body.Status)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid code status"))
				return
			}
			input.Status = &status
		}

		if err := svc.Update(r.Context(), id, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// AdminCodeDisable flips a code to disabled without deleting it.
func AdminCodeDisable(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Disable(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "disabled"})
	}
}

// AdminCodeDelete removes an unused code.
func AdminCodeDelete(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// AdminCodesBulkDelete removes a set of codes, silently skipping used ones.
func AdminCodesBulkDelete(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codesBulkDeleteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids := make([]uuid.UUID, 0, len(body.IDs))
		for _, raw := range body.IDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid code id"))
				return
			}
			ids = append(ids, id)
		}

		deleted, err := svc.BulkDelete(r.Context(), ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"deleted": deleted})
	}
}

// AdminCodesExport streams the filtered inventory as a CSV download.
func AdminCodesExport(svc *codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := codeFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := fmt.Sprintf("codes-%s.csv", time.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

		if err := svc.ExportCSV(r.Context(), filter, w); err != nil {
			// headers are already out; log instead of rewriting the response
			if logg != nil {
				logg.Error(r.Context(), "codes.export.failed", err)
			}
		}
	}
}

func codeFilterFromQuery(r *http.Request) (codes.Filter, error) {
	var filter codes.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.CodeStatus(raw)
		if !status.IsValid() {
			return codes.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid code status")
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("source")); raw != "" {
		filter.SourceName = &raw
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("search")); raw != "" {
		filter.Search = &raw
	}
	return filter, nil
}
