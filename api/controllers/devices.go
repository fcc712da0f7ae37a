package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/activation"
	"github.com/primex-iptv/primex-backend/internal/entitlements"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

type deviceRegisterRequest struct {
	MacAddress string          `json:"mac_address" validate:"required,mac_address"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty"`
}

type deviceActivateRequest struct {
	DeviceKey    string `json:"device_key" validate:"required,len=8"`
	PlanID       string `json:"plan_id" validate:"required,uuid"`
	DurationDays *int   `json:"duration_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

type deviceDeactivateRequest struct {
	DeviceKey string `json:"device_key" validate:"required,len=8"`
}

type deviceActivateResponse struct {
	DeviceKey    string                 `json:"device_key"`
	Status       enums.DeviceStatus     `json:"status"`
	PlanName     string                 `json:"plan_name"`
	User         *models.User           `json:"user"`
	Credentials  activation.Credentials `json:"credentials"`
	ExpiresAt    time.Time              `json:"expires_at"`
	Entitlements entitlements.Grant     `json:"entitlements"`
}

// DeviceRegister pairs a set-top box MAC with a short device key.
func DeviceRegister(svc *activation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body deviceRegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RegisterDevice(r.Context(), activation.RegisterInput{
			MacAddress: body.MacAddress,
			DeviceInfo: body.DeviceInfo,
			ClientIP:   clientIPPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// DeviceStatus is the device-side poll. The key and MAC arrive as query
// parameters because set-top boxes poll with a plain GET.
func DeviceStatus(svc *activation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deviceKey := strings.TrimSpace(r.URL.Query().Get("device_key"))
		mac := strings.TrimSpace(r.URL.Query().Get("mac_address"))
		if deviceKey == "" || mac == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "device_key and mac_address are required")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckStatus(r.Context(), activation.CheckInput{
			DeviceKey:  deviceKey,
			MacAddress: mac,
			ClientIP:   clientIPPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AdminDeviceActivate binds a pending pairing to a plan and provisions the
// playback account.
func AdminDeviceActivate(svc *activation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body deviceActivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		planID, err := uuid.Parse(body.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan id"))
			return
		}

		result, err := svc.Activate(r.Context(), activation.ActivateInput{
			DeviceKey:    body.DeviceKey,
			PlanID:       planID,
			OperatorID:   operatorID,
			DurationDays: body.DurationDays,
			ClientIP:     clientIPPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, deviceActivateResponse{
			DeviceKey:    body.DeviceKey,
			Status:       enums.DeviceStatusActive,
			PlanName:     result.PlanName,
			User:         result.User,
			Credentials:  result.Credentials,
			ExpiresAt:    result.ExpiresAt,
			Entitlements: result.Grant,
		})
	}
}

// AdminDeviceDeactivate revokes a pairing and suspends the linked account.
func AdminDeviceDeactivate(svc *activation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body deviceDeactivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), activation.DeactivateInput{
			DeviceKey:  body.DeviceKey,
			OperatorID: operatorID,
			ClientIP:   clientIPPtr(r),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

// AdminDeviceList pages through pairings, optionally filtered by status.
func AdminDeviceList(repo *activation.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.DeviceStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed := enums.DeviceStatus(raw)
			if !parsed.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid device status"))
				return
			}
			status = &parsed
		}

		devices, meta, err := repo.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing devices"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"devices":    devices,
			"pagination": meta,
		})
	}
}

// AdminDeviceHistory returns the audit trail for one pairing.
func AdminDeviceHistory(repo *activation.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "activation repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deviceKey := strings.TrimSpace(r.URL.Query().Get("device_key"))
		if deviceKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "device_key is required"))
			return
		}

		device, err := repo.FindByKey(r.Context(), deviceKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "device not found"))
			return
		}

		history, err := repo.HistoryFor(r.Context(), device.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading device history"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"device":  device,
			"history": history,
		})
	}
}
