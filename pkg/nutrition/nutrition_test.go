package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExerciseFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		calories int
		want     Exercise
	}{
		{name: "zero", calories: 0, want: Exercise{Steps: 0, WalkingKM: 0}},
		{name: "three hundred", calories: 300, want: Exercise{Steps: 6000, WalkingKM: 6.0}},
		{name: "rounds to cents", calories: 333, want: Exercise{Steps: 6660, WalkingKM: 6.66}},
		{name: "half up", calories: 1, want: Exercise{Steps: 20, WalkingKM: 0.02}},
		{name: "negative clamps", calories: -40, want: Exercise{}},
		{name: "huge clamps", calories: 1 << 62, want: Exercise{Steps: MaxSteps, WalkingKM: MaxWalkingKM}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExerciseFor(tc.calories))
		})
	}
}

func TestSumKMAvoidsFloatDrift(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.3, SumKM(0.1, 0.2))
	assert.Equal(t, 10.0, SumKM(6.0, 4.0))
	assert.Equal(t, 0.0, SumKM())
}

func TestColumnsRoundTripThroughDriverValues(t *testing.T) {
	t.Parallel()

	details := FoodItemDetails{{Name: "egg", Count: 2, PerItemCalories: 70}}
	raw, err := details.Value()
	require.NoError(t, err)

	var scanned FoodItemDetails
	require.NoError(t, scanned.Scan([]byte(raw.(string))))
	assert.Equal(t, details, scanned)

	var empty FoodItemDetails
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	var n Nutrients
	require.Error(t, n.Scan(42))
}
