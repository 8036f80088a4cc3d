package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/internal/meals"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

type MealService interface {
	Summarize(ctx context.Context, ownerID string, filter timewindow.Filter) (*meals.Summary, error)
}

// MealsSummary totals the caller's meals for the optional date, week or month.
func MealsSummary(svc MealService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "meals")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		summary, err := svc.Summarize(r.Context(), owner, windowFilter(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
