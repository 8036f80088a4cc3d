package controllers

import (
	"net/http"

	"github.com/angelmondragon/platewise-backend/api/middleware"
	"github.com/angelmondragon/platewise-backend/api/responses"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// requireOwner writes a 401 and returns false when the auth middleware did
// not run.
func requireOwner(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	owner := middleware.OwnerIDFromContext(r.Context())
	if owner == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
		return "", false
	}
	return owner, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}
