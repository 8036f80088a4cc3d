// Package activity keeps the per-day calories-burned ledger and its summaries.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/pkg/db"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

type store interface {
	Create(ctx context.Context, log *models.ActivityLog) error
	FindForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*models.ActivityLog, error)
	FindByDate(ctx context.Context, ownerID string, day time.Time) (*models.ActivityLog, error)
	List(ctx context.Context, ownerID string, skip, limit int) ([]models.ActivityLog, error)
	ListRange(ctx context.Context, ownerID string, start, end time.Time) ([]models.ActivityLog, error)
	Update(ctx context.Context, log *models.ActivityLog) error
	Delete(ctx context.Context, id uuid.UUID, ownerID string) (bool, error)
}

// Input is a create request.
type Input struct {
	ActivityDate string
	Activities   []models.ActivityEntry
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	ActivityDate *string
	Activities   []models.ActivityEntry
}

// Log is the API view of a ledger row.
type Log struct {
	ID            uuid.UUID              `json:"id"`
	ActivityDate  string                 `json:"activity_date"`
	Activities    []models.ActivityEntry `json:"activities"`
	TotalCalories float64                `json:"total_calories"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Service implements the ledger operations.
type Service struct {
	repo store
	now  func() time.Time
}

// NewService builds the ledger service.
func NewService(repo store) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	return &Service{repo: repo, now: time.Now}, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*Log, error) {
	day, err := ParseDate(in.ActivityDate)
	if err != nil {
		return nil, err
	}
	entries, problems := validateEntries(in.Activities)
	problems = append(validateDate(day, s.now()), problems...)
	if len(problems) > 0 {
		return nil, validationError(problems)
	}

	row := &models.ActivityLog{OwnerID: ownerID, ActivityDate: day, Activities: entries}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, mapStoreError(err, day, "create activity log")
	}
	return toLog(row), nil
}

// List returns one page ordered by date, newest first.
func (s *Service) List(ctx context.Context, ownerID string, skip, limit int) ([]*Log, error) {
	if skip < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "skip must not be negative")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("limit must be at most %d", MaxListLimit))
	}
	rows, err := s.repo.List(ctx, ownerID, skip, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity logs")
	}
	out := make([]*Log, 0, len(rows))
	for i := range rows {
		out = append(out, toLog(&rows[i]))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Log, error) {
	row, err := s.repo.FindForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, mapStoreError(err, time.Time{}, "get activity log")
	}
	return toLog(row), nil
}

func (s *Service) GetByDate(ctx context.Context, ownerID, rawDate string) (*Log, error) {
	day, err := ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindByDate(ctx, ownerID, day)
	if err != nil {
		return nil, mapStoreError(err, day, "get activity log by date")
	}
	return toLog(row), nil
}

// Update revalidates the merged row before writing it.
func (s *Service) Update(ctx context.Context, ownerID string, id uuid.UUID, in UpdateInput) (*Log, error) {
	row, err := s.repo.FindForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, mapStoreError(err, time.Time{}, "get activity log")
	}

	var problems []FieldError
	if in.ActivityDate != nil {
		day, err := ParseDate(*in.ActivityDate)
		if err != nil {
			return nil, err
		}
		problems = append(problems, validateDate(day, s.now())...)
		row.ActivityDate = day
	}
	if in.Activities != nil {
		entries, entryProblems := validateEntries(in.Activities)
		problems = append(problems, entryProblems...)
		row.Activities = entries
	}
	if len(problems) > 0 {
		return nil, validationError(problems)
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, mapStoreError(err, row.ActivityDate, "update activity log")
	}
	row.UpdatedAt = s.now().UTC()
	return toLog(row), nil
}

func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete activity log")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "activity log not found")
	}
	return nil
}

func toLog(row *models.ActivityLog) *Log {
	activities := []models.ActivityEntry(row.Activities)
	if activities == nil {
		activities = []models.ActivityEntry{}
	}
	total, _ := dayTotal(row.Activities).Float64()
	return &Log{
		ID:            row.ID,
		ActivityDate:  row.ActivityDate.UTC().Format(timewindow.DayLayout),
		Activities:    activities,
		TotalCalories: total,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func mapStoreError(err error, day time.Time, msg string) error {
	switch {
	case db.IsNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, "activity log not found")
	case db.IsUniqueViolation(err, "ux_activity_logs_owner_date"):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an activity log already exists for this date").
			WithDetails(map[string]any{"activity_date": day.Format(timewindow.DayLayout)})
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
