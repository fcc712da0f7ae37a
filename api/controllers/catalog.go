package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/catalog"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/pagination"
)

type planCreateRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=128"`
	DurationDays int     `json:"duration_days" validate:"required,min=1,max=3650"`
	Price        string  `json:"price" validate:"required"`
	MaxDevices   int     `json:"max_devices,omitempty" validate:"omitempty,min=1,max=100"`
	ServerID     *string `json:"server_id,omitempty" validate:"omitempty,uuid"`
}

type planUpdateRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=2,max=128"`
	DurationDays *int    `json:"duration_days,omitempty" validate:"omitempty,min=1,max=3650"`
	Price        *string `json:"price,omitempty"`
	MaxDevices   *int    `json:"max_devices,omitempty" validate:"omitempty,min=1,max=100"`
	ServerID     *string `json:"server_id,omitempty" validate:"omitempty,uuid"`
	Status       *string `json:"status,omitempty"`
}

// AdminPlanCreate adds a subscription plan to the catalog.
func AdminPlanCreate(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body planCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := decimal.NewFromString(body.Price)
		if err != nil || price.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid price"))
			return
		}

		plan := models.Plan{
			ID:           uuid.New(),
			Name:         strings.TrimSpace(body.Name),
			DurationDays: body.DurationDays,
			Price:        price,
			MaxDevices:   body.MaxDevices,
			Status:       enums.ContentStatusActive,
		}
		if plan.MaxDevices <= 0 {
			plan.MaxDevices = 1
		}
		if body.ServerID != nil {
			serverID, err := uuid.Parse(*body.ServerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid server id"))
				return
			}
			if _, err := repo.FindServerByID(r.Context(), serverID); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown stream server"))
				return
			}
			plan.ServerID = &serverID
		}

		if err := repo.CreatePlan(r.Context(), &plan); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating plan"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

// AdminPlanList pages through the plan catalog.
func AdminPlanList(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plans, total, err := repo.ListPlans(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing plans"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"plans":      plans,
			"pagination": pagination.NewMeta(total, params),
		})
	}
}

// AdminPlanGet loads one plan.
func AdminPlanGet(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := repo.FindPlanByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "plan not found"))
			return
		}

		responses.WriteSuccess(w, plan)
	}
}

// AdminPlanUpdate patches a plan; nil fields are left untouched.
func AdminPlanUpdate(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body planUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updates := map[string]any{}
		if body.Name != nil {
			updates["name"] = strings.TrimSpace(*body.Name)
		}
		if body.DurationDays != nil {
			updates["duration_days"] = *body.DurationDays
		}
		if body.Price != nil {
			price, err := decimal.NewFromString(*body.Price)
			if err != nil || price.IsNegative() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid price"))
				return
			}
			updates["price"] = price
		}
		if body.MaxDevices != nil {
			updates["max_devices"] = *body.MaxDevices
		}
		if body.ServerID != nil {
			serverID, err := uuid.Parse(*body.ServerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid server id"))
				return
			}
			if _, err := repo.FindServerByID(r.Context(), serverID); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown stream server"))
				return
			}
			updates["server_id"] = serverID
		}
		if body.Status != nil {
			status := enums.ContentStatus(*body.Status)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan status"))
				return
			}
			updates["status"] = status
		}
		if len(updates) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update"))
			return
		}

		if _, err := repo.FindPlanByID(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "plan not found"))
			return
		}

		if err := repo.UpdatePlan(r.Context(), id, updates); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating plan"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// AdminPlanDelete removes a plan from the catalog. Codes already generated
// against it keep their snapshotted duration.
func AdminPlanDelete(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuidURLParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := repo.FindPlanByID(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "plan not found"))
			return
		}

		if err := repo.DeletePlan(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting plan"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// AdminServerList returns the configured stream servers.
func AdminServerList(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		servers, err := repo.ListServers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing servers"))
			return
		}

		responses.WriteSuccess(w, map[string]any{"servers": servers})
	}
}

// AdminChannelList pages through channels, optionally scoped to a category.
func AdminChannelList(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var categoryID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("category_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid category id"))
				return
			}
			categoryID = &id
		}

		channels, total, err := repo.ListChannels(r.Context(), categoryID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing channels"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"channels":   channels,
			"pagination": pagination.NewMeta(total, params),
		})
	}
}

// AdminCategoryList returns the catalog categories.
func AdminCategoryList(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "catalog repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.ContentStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed := enums.ContentStatus(raw)
			if !parsed.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status"))
				return
			}
			status = &parsed
		}

		categories, err := repo.ListCategories(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing categories"))
			return
		}

		responses.WriteSuccess(w, map[string]any{"categories": categories})
	}
}
