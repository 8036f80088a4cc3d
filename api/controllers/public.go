package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/platewise-backend/api/middleware"
	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/api/validators"
	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

const notFoodNote = "This image does not appear to contain food. Try a clearer photo of your meal."

// PreviewAnalyzer runs an analysis without persisting anything.
type PreviewAnalyzer interface {
	AnalyzeOnly(ctx context.Context, file ingest.Upload, note string, maxBytes int64) (vision.Result, error)
}

type rateLimitInfo struct {
	RemainingRequests int    `json:"remaining_requests"`
	Limit             int    `json:"limit"`
	Period            string `json:"period"`
}

type publicAnalysisResponse struct {
	vision.Result
	RateLimit *rateLimitInfo `json:"rate_limit,omitempty"`
	Note      string         `json:"note,omitempty"`
}

// PublicAnalyzeFood is the anonymous, rate-limited analysis endpoint. Model
// failures degrade to the default result.
func PublicAnalyzeFood(svc PreviewAnalyzer, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "analysis")
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

		payload := publicAnalysisResponse{Result: result}
		if d, ok := middleware.RateLimitFromContext(r.Context()); ok {
			payload.RateLimit = &rateLimitInfo{
				RemainingRequests: d.Remaining,
				Limit:             d.Limit,
				Period:            middleware.RetryAfter,
			}
		}
		if !result.IsFood {
			payload.Note = notFoodNote
		}
		responses.WriteSuccess(w, payload)
	}
}
