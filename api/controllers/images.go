package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/api/validators"
	"github.com/angelmondragon/platewise-backend/internal/images"
	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/pagination"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

const (
	fileField     = "file"
	noteField     = "description"
	analysisField = "analysis"
)

// ImageService is the subset of images.Service the handlers need.
type ImageService interface {
	Upload(ctx context.Context, ownerID string, in images.UploadInput) (*images.Image, error)
	UploadWithAnalysis(ctx context.Context, ownerID string, file ingest.Upload, analysisJSON []byte) (*images.Image, error)
	AnalyzeOnly(ctx context.Context, file ingest.Upload, note string, maxBytes int64) (vision.Result, error)
	List(ctx context.Context, ownerID string, params images.ListParams) (*images.ListResult, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*images.Image, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	SetIsMeal(ctx context.Context, ownerID string, id uuid.UUID, value bool) (*images.Image, error)
	Reanalyze(ctx context.Context, ownerID string, id uuid.UUID, note string) (*images.Image, error)
	Diagnose(ctx context.Context, ownerID string, id uuid.UUID) (*images.Diagnostics, error)
}

type setMealRequest struct {
	IsMeal *bool `json:"is_meal" validate:"required"`
}

type reanalyzeRequest struct {
	Description string `json:"description" validate:"max=500"`
}

// ImagesUpload stores a photo and analyzes it.
func ImagesUpload(svc ImageService, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		file, err := validators.ReadUpload(w, r, fileField, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		img, err := svc.Upload(r.Context(), owner, images.UploadInput{File: file, Note: validators.FormNote(r, noteField)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, img)
	}
}

// ImagesUploadWithAnalysis stores a photo together with an analysis the
// client already has.
func ImagesUploadWithAnalysis(svc ImageService, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		file, err := validators.ReadUpload(w, r, fileField, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		analysis := r.FormValue(analysisField)
		if analysis == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "analysis is required").
				WithDetails(map[string]any{"field": analysisField}))
			return
		}

		img, err := svc.UploadWithAnalysis(r.Context(), owner, file, []byte(analysis))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, img)
	}
}

// ImagesAnalyzeOnly previews the analysis without storing the photo.
func ImagesAnalyzeOnly(svc ImageService, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
			return
		}
		if _, ok := requireOwner(w, r, logg); !ok {
			return
		}

		file, err := validators.ReadUpload(w, r, fileField, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AnalyzeOnly(r.Context(), file, validators.FormNote(r, noteField), maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ImagesList pages through the caller's images.
func ImagesList(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
			return
		}
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), owner, images.ListParams{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor"),
			Filter: windowFilter(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ImagesGet(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
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

		img, err := svc.Get(r.Context(), owner, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, img)
	}
}

func ImagesDelete(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
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

// ImagesSetMeal flips the meal flag.
func ImagesSetMeal(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
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

		var payload setMealRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		img, err := svc.SetIsMeal(r.Context(), owner, id, *payload.IsMeal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, img)
	}
}

// ImagesReanalyze runs the model again on the stored photo. The body is
// optional.
func ImagesReanalyze(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
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

		var payload reanalyzeRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		img, err := svc.Reanalyze(r.Context(), owner, id, validators.SanitizeNote(payload.Description))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, img)
	}
}

// ImagesDiagnostics reports blob and model connectivity for one image.
// Failed probes are part of the 200 payload.
func ImagesDiagnostics(svc ImageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "images")
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

		diag, err := svc.Diagnose(r.Context(), owner, id)
		if diag == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(logg.WithImageID(r.Context(), id.String()), "images.diagnostics_failed")
		}
		responses.WriteSuccess(w, diag)
	}
}

func windowFilter(r *http.Request) timewindow.Filter {
	return timewindow.Filter{
		Day:   validators.QueryString(r, "date"),
		Week:  validators.QueryString(r, "week"),
		Month: validators.QueryString(r, "month"),
	}
}
