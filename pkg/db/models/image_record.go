package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/pkg/nutrition"
	"github.com/angelmondragon/platewise-backend/pkg/types"
)

// ImageRecord is an uploaded food photo together with its analysis outcome and
// the cached presigned read URL. Analysis columns stay NULL until the vision
// model has answered.
type ImageRecord struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       string    `gorm:"column:owner_id;not null;index"`
	FileName      string    `gorm:"column:file_name;not null"`
	StorageKey    string    `gorm:"column:storage_key;not null;unique"`
	StorageBucket string    `gorm:"column:storage_bucket;not null"`
	SizeBytes     int64     `gorm:"column:size_bytes;not null"`
	ContentType   string    `gorm:"column:content_type;not null"`

	IsFood                 *bool                     `gorm:"column:is_food"`
	IsMeal                 bool                      `gorm:"column:is_meal;not null;default:false"`
	Description            *string                   `gorm:"column:description"`
	FoodItems              types.StringList          `gorm:"column:food_items;type:jsonb"`
	FoodItemsDetails       nutrition.FoodItemDetails `gorm:"column:food_items_details;type:jsonb"`
	Calories               *int                      `gorm:"column:calories"`
	Nutrients              *nutrition.Nutrients      `gorm:"column:nutrients;type:jsonb"`
	Confidence             *float64                  `gorm:"column:confidence"`
	ExerciseRecommendation *nutrition.Exercise       `gorm:"column:exercise_recommendation;type:jsonb"`
	AnalysisCompletedAt    *time.Time                `gorm:"column:analysis_completed_at"`

	PresignedURL          *string    `gorm:"column:presigned_url"`
	PresignedURLExpiresAt *time.Time `gorm:"column:presigned_url_expires_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ImageRecord) TableName() string { return "image_records" }

// Analyzed reports whether the vision model result has been attached.
func (r ImageRecord) Analyzed() bool {
	return r.AnalysisCompletedAt != nil
}

// IsFoodImage treats a not-yet-analyzed image as not food.
func (r ImageRecord) IsFoodImage() bool {
	return r.IsFood != nil && *r.IsFood
}

// CaloriesOrZero returns the estimated calories or 0 when unknown.
func (r ImageRecord) CaloriesOrZero() int {
	if r.Calories == nil {
		return 0
	}
	return *r.Calories
}

// Exercise returns the stored recommendation, deriving it from calories when absent.
func (r ImageRecord) Exercise() nutrition.Exercise {
	if r.ExerciseRecommendation != nil {
		return *r.ExerciseRecommendation
	}
	return nutrition.ExerciseFor(r.CaloriesOrZero())
}
