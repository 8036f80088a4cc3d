package images

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/nutrition"
	"github.com/angelmondragon/platewise-backend/pkg/types"
)

// Image is the API representation of a stored photo.
type Image struct {
	ID                     uuid.UUID                  `json:"id"`
	FileName               string                     `json:"file_name"`
	ContentType            string                     `json:"content_type"`
	SizeBytes              int64                      `json:"size_bytes"`
	URL                    string                     `json:"url,omitempty"`
	URLExpiresAt           *time.Time                 `json:"url_expires_at,omitempty"`
	IsFood                 *bool                      `json:"is_food"`
	IsMeal                 bool                       `json:"is_meal"`
	Description            *string                    `json:"description"`
	FoodItems              []string                   `json:"food_items"`
	FoodItemsDetails       []nutrition.FoodItemDetail `json:"food_items_details"`
	Calories               *int                       `json:"calories"`
	Nutrients              *nutrition.Nutrients       `json:"nutrients"`
	Confidence             *float64                   `json:"confidence"`
	ExerciseRecommendation *nutrition.Exercise        `json:"exercise_recommendation"`
	AnalysisPending        bool                       `json:"analysis_pending"`
	AnalysisCompletedAt    *time.Time                 `json:"analysis_completed_at"`
	CreatedAt              time.Time                  `json:"created_at"`
}

func (s *Service) toImage(rec *models.ImageRecord) *Image {
	return ToImage(rec)
}

// ToImage converts a record into its API form.
func ToImage(rec *models.ImageRecord) *Image {
	out := &Image{
		ID:                     rec.ID,
		FileName:               rec.FileName,
		ContentType:            rec.ContentType,
		SizeBytes:              rec.SizeBytes,
		URLExpiresAt:           rec.PresignedURLExpiresAt,
		IsFood:                 rec.IsFood,
		IsMeal:                 rec.IsMeal,
		Description:            rec.Description,
		FoodItems:              []string(rec.FoodItems),
		FoodItemsDetails:       []nutrition.FoodItemDetail(rec.FoodItemsDetails),
		Calories:               rec.Calories,
		Nutrients:              rec.Nutrients,
		Confidence:             rec.Confidence,
		ExerciseRecommendation: rec.ExerciseRecommendation,
		AnalysisPending:        !rec.Analyzed(),
		AnalysisCompletedAt:    rec.AnalysisCompletedAt,
		CreatedAt:              rec.CreatedAt,
	}
	if rec.PresignedURL != nil {
		out.URL = *rec.PresignedURL
	}
	if out.FoodItems == nil {
		out.FoodItems = []string{}
	}
	if out.FoodItemsDetails == nil {
		out.FoodItemsDetails = []nutrition.FoodItemDetail{}
	}
	return out
}

// applyResult mirrors what AttachAnalysis wrote so callers see it without a reload.
func applyResult(rec *models.ImageRecord, result vision.Result, completedAt time.Time) {
	isFood := result.IsFood
	description := result.Description
	calories := result.Calories
	nutrients := result.Nutrients
	confidence := result.Confidence
	exercise := result.ExerciseRecommendations

	rec.IsFood = &isFood
	rec.IsMeal = isFood
	rec.Description = &description
	rec.FoodItems = types.StringList(result.FoodItems)
	rec.FoodItemsDetails = nutrition.FoodItemDetails(result.FoodItemsDetails)
	rec.Calories = &calories
	rec.Nutrients = &nutrients
	rec.Confidence = &confidence
	rec.ExerciseRecommendation = &exercise
	rec.AnalysisCompletedAt = &completedAt
}
