package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

const (
	MaxNameLength       = 100
	MaxActivityCalories = 10000
	MaxDailyCalories    = 5000
	DefaultRecentDays   = 7
	MaxRecentDays       = 365
	DefaultListLimit    = 100
	MaxListLimit        = 1000
)

var (
	maxActivity = decimal.NewFromInt(MaxActivityCalories)
	maxDaily    = decimal.NewFromInt(MaxDailyCalories)
)

// FieldError names the offending input and why it was rejected.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ParseCalories reads a user-entered calorie string. ok is false when the
// value is not a number.
func ParseCalories(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// ParseDate reads a YYYY-MM-DD ledger date as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	window, ok := timewindow.ParseDay(strings.TrimSpace(raw))
	if !ok {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "dates must use YYYY-MM-DD").
			WithDetails([]FieldError{{Field: "activity_date", Reason: "invalid date"}})
	}
	return window.Start, nil
}

// validateDate rejects days after today (UTC).
func validateDate(day, now time.Time) []FieldError {
	today := now.UTC().Truncate(24 * time.Hour)
	if day.After(today) {
		return []FieldError{{Field: "activity_date", Reason: "must not be in the future"}}
	}
	return nil
}

// validateEntries applies the per-activity and per-day rules and returns the
// entries with trimmed names.
func validateEntries(entries []models.ActivityEntry) (models.ActivityEntries, []FieldError) {
	if len(entries) == 0 {
		return nil, []FieldError{{Field: "activities", Reason: "at least one activity is required"}}
	}

	var problems []FieldError
	seen := make(map[string]struct{}, len(entries))
	total := decimal.Zero
	out := make(models.ActivityEntries, 0, len(entries))
	for i, entry := range entries {
		field := fmt.Sprintf("activities[%d]", i)
		name := strings.TrimSpace(entry.ActivityName)
		switch {
		case name == "":
			problems = append(problems, FieldError{Field: field + ".activity_name", Reason: "must not be blank"})
		case len([]rune(name)) > MaxNameLength:
			problems = append(problems, FieldError{Field: field + ".activity_name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)})
		default:
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				problems = append(problems, FieldError{Field: field + ".activity_name", Reason: "duplicate activity for this day"})
			}
			seen[key] = struct{}{}
		}

		calories, ok := ParseCalories(entry.Calories)
		switch {
		case !ok:
			problems = append(problems, FieldError{Field: field + ".calories", Reason: "must be a number"})
		case calories.IsNegative() || calories.GreaterThan(maxActivity):
			problems = append(problems, FieldError{Field: field + ".calories", Reason: fmt.Sprintf("must be between 0 and %d", MaxActivityCalories)})
		default:
			total = total.Add(calories)
		}

		out = append(out, models.ActivityEntry{ActivityName: name, Calories: strings.TrimSpace(entry.Calories)})
	}

	if total.GreaterThan(maxDaily) {
		problems = append(problems, FieldError{Field: "activities", Reason: fmt.Sprintf("daily total must not exceed %d", MaxDailyCalories)})
	}
	return out, problems
}

func validationError(problems []FieldError) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "activity log is invalid").WithDetails(problems)
}
