package images

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/platewise-backend/internal/repo"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/nutrition"
	"github.com/angelmondragon/platewise-backend/pkg/pagination"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
	"github.com/angelmondragon/platewise-backend/pkg/types"
)

// Repository persists image records.
type Repository struct {
	repo.Base
}

// NewRepository constructs an image repository bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

type listQuery struct {
	ownerID   string
	window    *timewindow.Window
	mealsOnly bool
	limit     int
	cursor    *pagination.Cursor
}

// Create inserts the record, assigning an id when missing.
func (r *Repository) Create(ctx context.Context, rec *models.ImageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Create(rec).Error
	})
}

// FindForOwner returns gorm.ErrRecordNotFound when the record is missing or
// belongs to someone else.
func (r *Repository) FindForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("id = ? AND owner_id = ?", id, ownerID).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByID is used by background jobs that act on behalf of every owner.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("id = ?", id).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records newest first, keyed by (created_at, id).
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.ImageRecord, error) {
	var rows []models.ImageRecord
	err := r.Run(ctx, func(conn *gorm.DB) error {
		query := conn.Model(&models.ImageRecord{}).Where("owner_id = ?", q.ownerID)
		if q.mealsOnly {
			query = query.Where("is_meal = ?", true)
		}
		if q.window != nil {
			query = query.Where("created_at >= ? AND created_at < ?", q.window.Start, q.window.End)
		}
		if q.cursor != nil {
			query = query.Where(
				"((created_at < ?) OR (created_at = ? AND id < ?))",
				q.cursor.CreatedAt, q.cursor.CreatedAt, q.cursor.ID,
			)
		}
		query = query.Order("created_at DESC").Order("id DESC")
		if q.limit > 0 {
			query = query.Limit(q.limit)
		}
		return query.Find(&rows).Error
	})
	return rows, err
}

// ListMeals returns every meal of the owner inside the optional window.
func (r *Repository) ListMeals(ctx context.Context, ownerID string, window *timewindow.Window) ([]models.ImageRecord, error) {
	return r.List(ctx, listQuery{ownerID: ownerID, window: window, mealsOnly: true})
}

// Delete removes the record and reports whether a row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, ownerID string) (bool, error) {
	var affected int64
	err := r.Run(ctx, func(conn *gorm.DB) error {
		res := conn.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.ImageRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

// AttachAnalysis stores a repaired analysis and mirrors is_food into is_meal.
func (r *Repository) AttachAnalysis(ctx context.Context, id uuid.UUID, result vision.Result, completedAt time.Time) error {
	exercise := result.ExerciseRecommendations
	nutrients := result.Nutrients
	updates := map[string]any{
		"is_food":                 result.IsFood,
		"is_meal":                 result.IsFood,
		"description":             result.Description,
		"food_items":              types.StringList(result.FoodItems),
		"food_items_details":      nutrition.FoodItemDetails(result.FoodItemsDetails),
		"calories":                result.Calories,
		"nutrients":               &nutrients,
		"confidence":              result.Confidence,
		"exercise_recommendation": &exercise,
		"analysis_completed_at":   completedAt.UTC(),
	}
	return r.Run(ctx, func(conn *gorm.DB) error {
		res := conn.Model(&models.ImageRecord{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// SetIsMeal updates the meal flag of an owned record.
func (r *Repository) SetIsMeal(ctx context.Context, id uuid.UUID, ownerID string, value bool) error {
	return r.Run(ctx, func(conn *gorm.DB) error {
		res := conn.Model(&models.ImageRecord{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Update("is_meal", value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// UpdatePresignedURL caches a signed read URL. Concurrent refreshes simply
// overwrite each other.
func (r *Repository) UpdatePresignedURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error {
	return r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Model(&models.ImageRecord{}).Where("id = ?", id).Updates(map[string]any{
			"presigned_url":            url,
			"presigned_url_expires_at": expiresAt.UTC(),
		}).Error
	})
}

// ListPendingAnalysis returns the oldest records created before the cutoff
// that still have no analysis.
func (r *Repository) ListPendingAnalysis(ctx context.Context, before time.Time, limit int) ([]models.ImageRecord, error) {
	var rows []models.ImageRecord
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("analysis_completed_at IS NULL AND created_at < ?", before.UTC()).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
	})
	return rows, err
}
