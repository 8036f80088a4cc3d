package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/platewise-backend/api/responses"
	pkgAuth "github.com/angelmondragon/platewise-backend/pkg/auth"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// Auth requires an HS256 bearer token and puts its owner id on the request
// context. Tokens are issued elsewhere; this service only verifies them.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithOwnerID(r.Context(), claims.OwnerID)
			if logg != nil {
				ctx = logg.WithOwnerID(ctx, claims.OwnerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" with any casing of the scheme.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
