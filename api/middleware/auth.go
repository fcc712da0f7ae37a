package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/primex-iptv/primex-backend/api/responses"
	pkgAuth "github.com/primex-iptv/primex-backend/pkg/auth"
	"github.com/primex-iptv/primex-backend/pkg/auth/session"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	pkgerrors "github.com/primex-iptv/primex-backend/pkg/errors"
	"github.com/primex-iptv/primex-backend/pkg/logger"
)

// Auth validates a bearer token for the given principal kind and seeds the
// request context with the claims. Operator tokens additionally need a live
// session row so revocation takes effect immediately.
func Auth(cfg config.JWTConfig, kind enums.PrincipalKind, sessions session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, kind, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if kind == enums.PrincipalKindOperator {
				if sessions == nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session checker not configured"))
					return
				}
				ok, err := sessions.HasSession(r.Context(), token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxSubjectID, claims.SubjectID.String())
			ctx = context.WithValue(ctx, ctxPrincipalKind, string(claims.Kind))
			ctx = context.WithValue(ctx, ctxUsername, claims.Username)
			ctx = context.WithValue(ctx, ctxBearerToken, token)

			if logg != nil {
				switch kind {
				case enums.PrincipalKindOperator:
					ctx = logg.WithOperatorID(ctx, claims.SubjectID.String())
				default:
					ctx = logg.WithAccountID(ctx, claims.SubjectID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
