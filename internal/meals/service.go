// Package meals aggregates the calories of images flagged as meals.
package meals

import (
	"context"
	"fmt"

	"github.com/angelmondragon/platewise-backend/internal/images"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/nutrition"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

type mealSource interface {
	ListMeals(ctx context.Context, ownerID string, window *timewindow.Window) ([]models.ImageRecord, error)
}

// Summary is the aggregate over one optional window.
type Summary struct {
	TotalMeals    int                `json:"total_meals"`
	TotalCalories int                `json:"total_calories"`
	TotalExercise nutrition.Exercise `json:"total_exercise"`
	Window        *WindowInfo        `json:"window,omitempty"`
	Meals         []*images.Image    `json:"meals"`
}

// WindowInfo echoes the filter that was applied.
type WindowInfo struct {
	Kind  timewindow.Kind `json:"kind"`
	Start string          `json:"start"`
	End   string          `json:"end"`
}

// Service computes meal summaries.
type Service struct {
	source mealSource
}

// NewService builds the summary service.
func NewService(source mealSource) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("meal source required")
	}
	return &Service{source: source}, nil
}

// Summarize counts the owner's meals (is_meal=true) and sums their calories
// and exercise recommendations. Only one of the filters applies: day over
// week over month; unparseable values are ignored.
func (s *Service) Summarize(ctx context.Context, ownerID string, filter timewindow.Filter) (*Summary, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	window := timewindow.Resolve(filter)
	rows, err := s.source.ListMeals(ctx, ownerID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list meals")
	}

	out := Aggregate(rows)
	if window != nil {
		out.Window = &WindowInfo{
			Kind:  window.Kind,
			Start: window.Start.Format(timewindow.DayLayout),
			End:   window.End.AddDate(0, 0, -1).Format(timewindow.DayLayout),
		}
	}
	return out, nil
}

// Aggregate sums the given records, skipping any that are not meals.
func Aggregate(rows []models.ImageRecord) *Summary {
	out := &Summary{Meals: []*images.Image{}}
	kms := make([]float64, 0, len(rows))
	for i := range rows {
		rec := &rows[i]
		if !rec.IsMeal {
			continue
		}
		exercise := rec.Exercise()
		out.TotalMeals++
		out.TotalCalories += rec.CaloriesOrZero()
		out.TotalExercise.Steps += exercise.Steps
		kms = append(kms, exercise.WalkingKM)
		out.Meals = append(out.Meals, images.ToImage(rec))
	}
	out.TotalExercise.WalkingKM = nutrition.SumKM(kms...)
	return out
}
