package controllers

import (
	"net/http"

	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/entitlements"
	"github.com/primex-iptv/primex-backend/internal/redemption"
	"github.com/primex-iptv/primex-backend/pkg/db/models"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

type codeLoginRequest struct {
	Code       string  `json:"code" validate:"required,min=4,max=32"`
	DeviceID   *string `json:"device_id,omitempty" validate:"omitempty,max=128"`
	MacAddress *string `json:"mac_address,omitempty" validate:"omitempty,mac_address"`
}

type codeLoginResponse struct {
	User         *models.User           `json:"user"`
	Credentials  redemption.Credentials `json:"credentials"`
	Token        string                 `json:"token"`
	RefreshToken string                 `json:"refresh_token"`
	Entitlements entitlements.Grant     `json:"entitlements"`
}

// AuthCodeLogin exchanges a subscription code for a provisioned account and
// a signed-in session. The plaintext password in the response is the only
// time it is ever disclosed.
func AuthCodeLogin(svc *redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "redemption service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body codeLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), redemption.RedeemInput{
			Code:       body.Code,
			DeviceID:   body.DeviceID,
			MacAddress: body.MacAddress,
			ClientIP:   clientIPPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, codeLoginResponse{
			User:         result.User,
			Credentials:  result.Credentials,
			Token:        result.Token,
			RefreshToken: result.RefreshToken,
			Entitlements: result.Grant,
		})
	}
}
