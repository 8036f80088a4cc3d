package vision

import (
	"fmt"
	"strings"
)

const basePrompt = `Look at this photo and decide whether it shows food.
Respond with a single JSON object and nothing else. Do not wrap it in markdown.
Use exactly these keys:
- "is_food": boolean, true when any food is visible
- "food_items": array of strings naming each food found (empty when no food)
- "food_items_details": array of objects with "name" (string), "count" (integer) and "per_item_calories" (integer, 0 when unknown)
- "description": one sentence describing the image, with item counts when possible
- "calories": estimated total calories as a number (0 when no food)
- "nutrients": object with "protein", "carbs", "fat" and "sugar" in grams (all 0 when no food)
- "confidence": number between 0 and 1
- "exercise_recommendations": object with "steps" (integer) and "walking_km" (number) needed to burn the calories

Food example:
{"is_food":true,"food_items":["pancake","blueberries"],"food_items_details":[{"name":"pancake","count":3,"per_item_calories":90},{"name":"blueberries","count":1,"per_item_calories":40}],"description":"A stack of 3 pancakes topped with blueberries.","calories":310,"nutrients":{"protein":8,"carbs":52,"fat":7,"sugar":18},"confidence":0.9,"exercise_recommendations":{"steps":6200,"walking_km":6.2}}

Non-food example:
{"is_food":false,"food_items":[],"food_items_details":[],"description":"A bicycle leaning against a wall.","calories":0,"nutrients":{"protein":0,"carbs":0,"fat":0,"sugar":0},"confidence":0.95,"exercise_recommendations":{"steps":0,"walking_km":0.0}}`

// BuildPrompt returns the analysis instructions, prefixed with the user's
// note when one was given.
func BuildPrompt(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return basePrompt
	}
	return fmt.Sprintf("The user described this image as: %q. Use it as context when it is relevant.\n\n%s", note, basePrompt)
}
