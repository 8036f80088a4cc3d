package vision

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/angelmondragon/platewise-backend/pkg/nutrition"
)

const (
	defaultDescription = "Image analyzed"
	defaultConfidence  = 0.5
)

// Result is the canonical analysis. Every field is always populated.
type Result struct {
	IsFood                  bool                       `json:"is_food"`
	FoodItems               []string                   `json:"food_items"`
	FoodItemsDetails        []nutrition.FoodItemDetail `json:"food_items_details"`
	Description             string                     `json:"description"`
	Calories                int                        `json:"calories"`
	Nutrients               nutrition.Nutrients        `json:"nutrients"`
	Confidence              float64                    `json:"confidence"`
	ExerciseRecommendations nutrition.Exercise         `json:"exercise_recommendations"`
}

// rawResult mirrors the model output. Nil fields are keys that were missing
// or carried a value of the wrong type; repair defaults them one by one.
type rawResult struct {
	IsFood           *bool
	FoodItems        []string
	FoodItemsDetails []rawDetail
	Description      *string
	Calories         *float64
	Nutrients        *rawNutrients
	Confidence       *float64
	Exercise         *rawExercise
}

type rawDetail struct {
	Name            *string
	Count           *float64
	PerItemCalories *float64
}

type rawNutrients struct {
	Protein *float64
	Carbs   *float64
	Fat     *float64
	Sugar   *float64
}

type rawExercise struct {
	Steps     *float64
	WalkingKM *float64
}

type object map[string]json.RawMessage

// field treats an explicit null like a missing key.
func (o object) field(key string) (json.RawMessage, bool) {
	data, ok := o[key]
	if !ok || string(data) == "null" {
		return nil, false
	}
	return data, true
}

// leadingNumber accepts model quirks such as "350", "30g" or "12.5 kcal".
var leadingNumber = regexp.MustCompile(`^\s*-?\d+(\.\d+)?`)

func (o object) number(key string) *float64 {
	data, ok := o.field(key)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return &f
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return nil
	}
	m := leadingNumber.FindString(str)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return nil
	}
	return &f
}

func (o object) boolean(key string) *bool {
	data, ok := o.field(key)
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return &b
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "true", "yes":
		b = true
	case "false", "no":
		b = false
	default:
		return nil
	}
	return &b
}

func (o object) str(key string) *string {
	var s string
	if data, ok := o.field(key); !ok || json.Unmarshal(data, &s) != nil {
		return nil
	}
	return &s
}

func (o object) object(key string) object {
	var sub object
	if data, ok := o.field(key); !ok || json.Unmarshal(data, &sub) != nil {
		return nil
	}
	return sub
}

func (o object) list(key string) []json.RawMessage {
	var items []json.RawMessage
	if data, ok := o.field(key); !ok || json.Unmarshal(data, &items) != nil {
		return nil
	}
	return items
}

// Default is the result served when analysis could not be completed.
func Default() Result {
	r := repair(rawResult{})
	r.Confidence = 0
	return r
}

// Repair decodes a JSON object, possibly fenced as markdown, and fills every
// missing key with its default. It is used for model output as well as for
// analyses supplied by clients.
func Repair(data []byte) (Result, error) {
	raw, err := decode(string(data))
	if err != nil {
		return Result{}, err
	}
	return repair(raw), nil
}

// decode fails only when the text holds no JSON object at all.
func decode(text string) (rawResult, error) {
	var top object
	if err := json.Unmarshal([]byte(stripFences(text)), &top); err != nil {
		return rawResult{}, err
	}
	if top == nil {
		return rawResult{}, errors.New("analysis is not a JSON object")
	}

	raw := rawResult{
		IsFood:      top.boolean("is_food"),
		Description: top.str("description"),
		Calories:    top.number("calories"),
		Confidence:  top.number("confidence"),
	}
	for _, item := range top.list("food_items") {
		var name string
		if json.Unmarshal(item, &name) == nil {
			raw.FoodItems = append(raw.FoodItems, name)
		}
	}
	for _, item := range top.list("food_items_details") {
		var d object
		if json.Unmarshal(item, &d) != nil || d == nil {
			continue
		}
		raw.FoodItemsDetails = append(raw.FoodItemsDetails, rawDetail{
			Name:            d.str("name"),
			Count:           d.number("count"),
			PerItemCalories: d.number("per_item_calories"),
		})
	}
	if n := top.object("nutrients"); n != nil {
		raw.Nutrients = &rawNutrients{
			Protein: n.number("protein"),
			Carbs:   n.number("carbs"),
			Fat:     n.number("fat"),
			Sugar:   n.number("sugar"),
		}
	}
	if e := top.object("exercise_recommendations"); e != nil {
		raw.Exercise = &rawExercise{
			Steps:     e.number("steps"),
			WalkingKM: e.number("walking_km"),
		}
	}
	return raw, nil
}

// stripFences removes a surrounding ```json ... ``` block and any prose
// around the outermost object.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func repair(raw rawResult) Result {
	out := Result{
		FoodItems:        []string{},
		FoodItemsDetails: []nutrition.FoodItemDetail{},
		Description:      defaultDescription,
		Confidence:       defaultConfidence,
	}
	if raw.IsFood != nil {
		out.IsFood = *raw.IsFood
	}
	for _, item := range raw.FoodItems {
		if item = strings.TrimSpace(item); item != "" {
			out.FoodItems = append(out.FoodItems, item)
		}
	}
	for _, d := range raw.FoodItemsDetails {
		detail := nutrition.FoodItemDetail{
			Count:           bounded(d.Count, nutrition.MaxItemCount),
			PerItemCalories: bounded(d.PerItemCalories, nutrition.MaxCalories),
		}
		if d.Name != nil {
			detail.Name = strings.TrimSpace(*d.Name)
		}
		out.FoodItemsDetails = append(out.FoodItemsDetails, detail)
	}
	if raw.Description != nil && strings.TrimSpace(*raw.Description) != "" {
		out.Description = strings.TrimSpace(*raw.Description)
	}
	out.Calories = bounded(raw.Calories, nutrition.MaxCalories)
	if raw.Nutrients != nil {
		out.Nutrients = nutrition.Nutrients{
			Protein: clamp(raw.Nutrients.Protein, nutrition.MaxGrams),
			Carbs:   clamp(raw.Nutrients.Carbs, nutrition.MaxGrams),
			Fat:     clamp(raw.Nutrients.Fat, nutrition.MaxGrams),
			Sugar:   clamp(raw.Nutrients.Sugar, nutrition.MaxGrams),
		}
	}
	if raw.Confidence != nil && !math.IsNaN(*raw.Confidence) {
		out.Confidence = math.Min(1, math.Max(0, *raw.Confidence))
	}

	derived := nutrition.ExerciseFor(out.Calories)
	out.ExerciseRecommendations = derived
	if raw.Exercise != nil {
		if raw.Exercise.Steps != nil {
			out.ExerciseRecommendations.Steps = bounded(raw.Exercise.Steps, nutrition.MaxSteps)
		}
		if raw.Exercise.WalkingKM != nil {
			out.ExerciseRecommendations.WalkingKM = clamp(raw.Exercise.WalkingKM, nutrition.MaxWalkingKM)
		}
	}
	return out
}

// clamp bounds v into [0, limit]; missing and NaN values become 0.
func clamp(v *float64, limit float64) float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return 0
	}
	return math.Min(*v, limit)
}

// bounded rounds after clamping, so the float to int conversion never
// overflows.
func bounded(v *float64, limit int) int {
	return int(math.Round(clamp(v, float64(limit))))
}
