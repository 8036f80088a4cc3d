// Package nutrition holds the value types shared by the analysis pipeline and
// the persisted image records.
package nutrition

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/platewise-backend/pkg/types"
)

const (
	stepsPerCalorie   = 20
	caloriesPerKmWalk = 50
)

// Upper bounds for model-estimated quantities. MaxSteps stays well inside an
// int32 column.
const (
	MaxCalories  = 100_000
	MaxSteps     = MaxCalories * stepsPerCalorie
	MaxWalkingKM = MaxCalories / caloriesPerKmWalk
	MaxItemCount = 1_000
	MaxGrams     = 10_000
)

// Nutrients are grams per serving as estimated by the model.
type Nutrients struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Sugar   float64 `json:"sugar"`
}

func (n Nutrients) Value() (driver.Value, error) {
	return types.MarshalJSONValue(n)
}

func (n *Nutrients) Scan(value interface{}) error {
	return types.ScanJSON(value, n, "nutrients")
}

// FoodItemDetail describes one recognised item on the plate.
type FoodItemDetail struct {
	Name            string `json:"name"`
	Count           int    `json:"count"`
	PerItemCalories int    `json:"per_item_calories"`
}

// FoodItemDetails is persisted as a JSONB array.
type FoodItemDetails []FoodItemDetail

func (d FoodItemDetails) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	return types.MarshalJSONValue([]FoodItemDetail(d))
}

func (d *FoodItemDetails) Scan(value interface{}) error {
	var out []FoodItemDetail
	if err := types.ScanJSON(value, &out, "food item details"); err != nil {
		return err
	}
	if out == nil {
		out = []FoodItemDetail{}
	}
	*d = out
	return nil
}

// Exercise is the walking effort that offsets a meal.
type Exercise struct {
	Steps     int     `json:"steps"`
	WalkingKM float64 `json:"walking_km"`
}

func (e Exercise) Value() (driver.Value, error) {
	return types.MarshalJSONValue(e)
}

func (e *Exercise) Scan(value interface{}) error {
	return types.ScanJSON(value, e, "exercise recommendation")
}

// ExerciseFor derives the default recommendation: 20 steps per calorie and
// one walking kilometre per 50 calories, rounded to two decimals.
// Calories are clamped into [0, MaxCalories] first.
func ExerciseFor(calories int) Exercise {
	calories = min(max(calories, 0), MaxCalories)
	km, _ := decimal.NewFromInt(int64(calories)).
		Div(decimal.NewFromInt(caloriesPerKmWalk)).
		Round(2).
		Float64()
	return Exercise{
		Steps:     calories * stepsPerCalorie,
		WalkingKM: km,
	}
}

// SumKM adds walking distances without accumulating float drift.
func SumKM(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	out, _ := total.Round(2).Float64()
	return out
}
