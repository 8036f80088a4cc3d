package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/api/validators"
	"github.com/angelmondragon/platewise-backend/internal/activity"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

type ActivityService interface {
	Create(ctx context.Context, ownerID string, in activity.Input) (*activity.Log, error)
	List(ctx context.Context, ownerID string, skip, limit int) ([]*activity.Log, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*activity.Log, error)
	GetByDate(ctx context.Context, ownerID, rawDate string) (*activity.Log, error)
	Update(ctx context.Context, ownerID string, id uuid.UUID, in activity.UpdateInput) (*activity.Log, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	RangeSummary(ctx context.Context, ownerID, rawStart, rawEnd string) (*activity.Summary, error)
	RecentSummary(ctx context.Context, ownerID string, days int) (*activity.Summary, error)
	ActivityBreakdown(ctx context.Context, ownerID, rawStart, rawEnd string) (*activity.Breakdown, error)
}

type activityEntryRequest struct {
	ActivityName string `json:"activity_name" validate:"required"`
	Calories     string `json:"calories" validate:"required"`
}

type activityCreateRequest struct {
	ActivityDate string                 `json:"activity_date" validate:"required,datetime=2006-01-02"`
	Activities   []activityEntryRequest `json:"activities" validate:"required,min=1,dive"`
}

type activityUpdateRequest struct {
	ActivityDate *string                `json:"activity_date" validate:"omitempty,datetime=2006-01-02"`
	Activities   []activityEntryRequest `json:"activities" validate:"omitempty,min=1,dive"`
}

func toEntries(in []activityEntryRequest) []models.ActivityEntry {
	if in == nil {
		return nil
	}
	out := make([]models.ActivityEntry, 0, len(in))
	for _, e := range in {
		out = append(out, models.ActivityEntry{ActivityName: e.ActivityName, Calories: e.Calories})
	}
	return out
}

func ActivityCreate(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		var payload activityCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		log, err := svc.Create(r.Context(), owner, activity.Input{
			ActivityDate: payload.ActivityDate,
			Activities:   toEntries(payload.Activities),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, log)
	}
}

func ActivityList(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", activity.DefaultListLimit, 1, activity.MaxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logs, err := svc.List(r.Context(), owner, skip, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, logs)
	}
}

func ActivityGet(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		log, err := svc.Get(r.Context(), owner, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, log)
	}
}

func ActivityGetByDate(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		log, err := svc.GetByDate(r.Context(), owner, chi.URLParam(r, "date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, log)
	}
}

func ActivityUpdate(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload activityUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		log, err := svc.Update(r.Context(), owner, id, activity.UpdateInput{
			ActivityDate: payload.ActivityDate,
			Activities:   toEntries(payload.Activities),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, log)
	}
}

func ActivityDelete(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), owner, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true, "id": id})
	}
}

func ActivitySummaryRange(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		summary, err := svc.RangeSummary(r.Context(), owner, validators.QueryString(r, "start_date"), validators.QueryString(r, "end_date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func ActivitySummaryRecent(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		days, err := validators.ParseQueryInt(r, "days", activity.DefaultRecentDays, 1, activity.MaxRecentDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.RecentSummary(r.Context(), owner, days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func ActivitySummaryBreakdown(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activity")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		breakdown, err := svc.ActivityBreakdown(r.Context(), owner, validators.QueryString(r, "start_date"), validators.QueryString(r, "end_date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}
