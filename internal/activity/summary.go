package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

// Summary totals the calories burned over an inclusive date range.
type Summary struct {
	TotalCaloriesBurned   float64 `json:"total_calories_burned"`
	AverageCaloriesPerDay float64 `json:"average_calories_per_day"`
	DateRangeStart        string  `json:"date_range_start"`
	DateRangeEnd          string  `json:"date_range_end"`
	EntriesCount          int     `json:"entries_count"`
}

// ActivityTotal is one line of a breakdown.
type ActivityTotal struct {
	ActivityName  string  `json:"activity_name"`
	TotalCalories float64 `json:"total_calories"`
	Occurrences   int     `json:"occurrences"`
}

// Breakdown groups the range's calories by activity name.
type Breakdown struct {
	Summary
	Activities []ActivityTotal `json:"activities"`
}

// RangeSummary aggregates [start, end]; both are YYYY-MM-DD.
func (s *Service) RangeSummary(ctx context.Context, ownerID, rawStart, rawEnd string) (*Summary, error) {
	start, end, err := parseRange(rawStart, rawEnd)
	if err != nil {
		return nil, err
	}
	rows, err := s.rangeRows(ctx, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	out := Summarize(rows, start, end)
	return &out, nil
}

// RecentSummary aggregates the last days days, today included. days=0 means
// the default of 7.
func (s *Service) RecentSummary(ctx context.Context, ownerID string, days int) (*Summary, error) {
	if days == 0 {
		days = DefaultRecentDays
	}
	if days < 1 || days > MaxRecentDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("days must be between 1 and %d", MaxRecentDays))
	}
	end := s.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))
	rows, err := s.rangeRows(ctx, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	out := Summarize(rows, start, end)
	return &out, nil
}

// ActivityBreakdown aggregates [start, end] per activity name.
func (s *Service) ActivityBreakdown(ctx context.Context, ownerID, rawStart, rawEnd string) (*Breakdown, error) {
	start, end, err := parseRange(rawStart, rawEnd)
	if err != nil {
		return nil, err
	}
	rows, err := s.rangeRows(ctx, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	return &Breakdown{Summary: Summarize(rows, start, end), Activities: ByActivity(rows)}, nil
}

func (s *Service) rangeRows(ctx context.Context, ownerID string, start, end time.Time) ([]models.ActivityLog, error) {
	rows, err := s.repo.ListRange(ctx, ownerID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity range")
	}
	return rows, nil
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := ParseDate(rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseDate(rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "start_date must be on or before end_date")
	}
	return start, end, nil
}

// Summarize totals rows over [start, end]. The average is per logged day.
func Summarize(rows []models.ActivityLog, start, end time.Time) Summary {
	total := decimal.Zero
	for i := range rows {
		total = total.Add(dayTotal(rows[i].Activities))
	}
	out := Summary{
		DateRangeStart: start.Format(timewindow.DayLayout),
		DateRangeEnd:   end.Format(timewindow.DayLayout),
		EntriesCount:   len(rows),
	}
	out.TotalCaloriesBurned, _ = total.Round(2).Float64()
	if len(rows) > 0 {
		out.AverageCaloriesPerDay, _ = total.Div(decimal.NewFromInt(int64(len(rows)))).Round(2).Float64()
	}
	return out
}

// ByActivity sums calories per activity name, case-insensitively, largest
// total first. The first spelling seen names the group.
func ByActivity(rows []models.ActivityLog) []ActivityTotal {
	type acc struct {
		name  string
		total decimal.Decimal
		count int
	}
	groups := map[string]*acc{}
	for i := range rows {
		for _, entry := range rows[i].Activities {
			calories, ok := ParseCalories(entry.Calories)
			if !ok {
				continue
			}
			name := strings.TrimSpace(entry.ActivityName)
			key := strings.ToLower(name)
			g, exists := groups[key]
			if !exists {
				g = &acc{name: name, total: decimal.Zero}
				groups[key] = g
			}
			g.total = g.total.Add(calories)
			g.count++
		}
	}

	out := make([]ActivityTotal, 0, len(groups))
	for _, g := range groups {
		total, _ := g.total.Round(2).Float64()
		out = append(out, ActivityTotal{ActivityName: g.name, TotalCalories: total, Occurrences: g.count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCalories != out[j].TotalCalories {
			return out[i].TotalCalories > out[j].TotalCalories
		}
		return out[i].ActivityName < out[j].ActivityName
	})
	return out
}

// dayTotal skips calorie strings that do not parse.
func dayTotal(entries models.ActivityEntries) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		if v, ok := ParseCalories(entry.Calories); ok {
			total = total.Add(v)
		}
	}
	return total
}
