package controllers

import (
	"net/http"
	"strings"

	"github.com/primex-iptv/primex-backend/api/responses"
	"github.com/primex-iptv/primex-backend/api/validators"
	"github.com/primex-iptv/primex-backend/internal/audit"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

// AdminActivityList pages through the activity log, newest first, optionally
// filtered by action.
func AdminActivityList(repo *audit.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "audit repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var action *string
		if raw := strings.TrimSpace(r.URL.Query().Get("action")); raw != "" {
			action = &raw
		}

		entries, meta, err := repo.List(r.Context(), action, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing activity"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"entries":    entries,
			"pagination": meta,
		})
	}
}
