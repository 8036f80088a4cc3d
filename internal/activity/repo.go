package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/platewise-backend/internal/repo"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
)

// Repository persists ledger rows.
type Repository struct {
	repo.Base
}

// NewRepository constructs an activity repository bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// Create inserts the row. A second row for the same owner and date fails
// with the store's unique violation.
func (r *Repository) Create(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Create(log).Error
	})
}

func (r *Repository) FindForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*models.ActivityLog, error) {
	var log models.ActivityLog
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("id = ? AND owner_id = ?", id, ownerID).First(&log).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *Repository) FindByDate(ctx context.Context, ownerID string, day time.Time) (*models.ActivityLog, error) {
	var log models.ActivityLog
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("owner_id = ? AND activity_date = ?", ownerID, day).First(&log).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// List pages through the owner's rows, most recent day first.
func (r *Repository) List(ctx context.Context, ownerID string, skip, limit int) ([]models.ActivityLog, error) {
	var rows []models.ActivityLog
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("owner_id = ?", ownerID).
			Order("activity_date DESC").
			Offset(skip).
			Limit(limit).
			Find(&rows).Error
	})
	return rows, err
}

// ListRange returns the rows whose date falls in [start, end], oldest first.
func (r *Repository) ListRange(ctx context.Context, ownerID string, start, end time.Time) ([]models.ActivityLog, error) {
	var rows []models.ActivityLog
	err := r.Run(ctx, func(conn *gorm.DB) error {
		return conn.Where("owner_id = ? AND activity_date >= ? AND activity_date <= ?", ownerID, start, end).
			Order("activity_date ASC").
			Find(&rows).Error
	})
	return rows, err
}

// Update rewrites the date and activities of an owned row.
func (r *Repository) Update(ctx context.Context, log *models.ActivityLog) error {
	return r.Run(ctx, func(conn *gorm.DB) error {
		res := conn.Model(&models.ActivityLog{}).
			Where("id = ? AND owner_id = ?", log.ID, log.OwnerID).
			Updates(map[string]any{
				"activity_date": log.ActivityDate,
				"activities":    log.Activities,
				"updated_at":    time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, ownerID string) (bool, error) {
	var deleted bool
	err := r.Run(ctx, func(conn *gorm.DB) error {
		res := conn.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.ActivityLog{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}
