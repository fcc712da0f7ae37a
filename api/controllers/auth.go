package controllers

import (
	"net/http"

	"github.com/primex-iptv/primex-backend/api/middleware"
	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/auth"
	"github.com/primex-iptv/primex-backend/pkg/auth/session"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=4,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AdminAuthLogin signs an operator into the panel.
func AdminAuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.OperatorLogin(r.Context(), auth.LoginRequest{
			Username:  body.Username,
			Password:  body.Password,
			IPAddress: clientIPPtr(r),
			UserAgent: userAgentPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AdminAuthLogout revokes the session backing the presented token.
func AdminAuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.BearerTokenFromContext(r.Context())
		if err := svc.OperatorLogout(r.Context(), operatorID, token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AdminAuthLogoutAll revokes every other session for the operator.
func AdminAuthLogoutAll(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.BearerTokenFromContext(r.Context())
		revoked, err := svc.OperatorLogoutAll(r.Context(), operatorID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"revoked": revoked})
	}
}

// AdminAuthSessions lists the operator's live sessions, flagging the one
// backing the presented token.
func AdminAuthSessions(sessions *session.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, err := operatorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.BearerTokenFromContext(r.Context())
		infos, err := sessions.ListFor(r.Context(), operatorID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing sessions"))
			return
		}

		responses.WriteSuccess(w, map[string]any{"sessions": infos})
	}
}

// AccountAuthLogin signs a subscriber in with provisioned credentials.
func AccountAuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AccountLogin(r.Context(), auth.LoginRequest{
			Username:  body.Username,
			Password:  body.Password,
			IPAddress: clientIPPtr(r),
			UserAgent: userAgentPtr(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AccountAuthRefresh exchanges a refresh token for a new access token.
func AccountAuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
