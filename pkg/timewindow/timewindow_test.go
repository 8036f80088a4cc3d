package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    Filter
		kind  Kind
		start time.Time
		end   time.Time
	}{
		{"day only", Filter{Day: "2025-03-04"}, KindDay, date(2025, 3, 4), date(2025, 3, 5)},
		{"day beats week", Filter{Day: "2025-03-04", Week: "2025-W01"}, KindDay, date(2025, 3, 4), date(2025, 3, 5)},
		{"week beats month", Filter{Week: "2025-W10", Month: "2025-01"}, KindWeek, date(2025, 3, 3), date(2025, 3, 10)},
		{"month only", Filter{Month: "2024-02"}, KindMonth, date(2024, 2, 1), date(2024, 3, 1)},
		{"bad day falls through", Filter{Day: "yesterday", Month: "2024-12"}, KindMonth, date(2024, 12, 1), date(2025, 1, 1)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := Resolve(tc.in)
			require.NotNil(t, w)
			require.Equal(t, tc.kind, w.Kind)
			require.Equal(t, tc.start, w.Start)
			require.Equal(t, tc.end, w.End)
		})
	}
}

func TestResolveIgnoresGarbage(t *testing.T) {
	t.Parallel()
	require.Nil(t, Resolve(Filter{}))
	require.Nil(t, Resolve(Filter{Day: "2025-13-40", Week: "2025-W99", Month: "March"}))
}

func TestParseWeekISOBoundaries(t *testing.T) {
	t.Parallel()

	// 2025-W01 starts on Monday 2024-12-30.
	w, ok := ParseWeek("2025-W01")
	require.True(t, ok)
	require.Equal(t, date(2024, 12, 30), w.Start)

	// 2020 has 53 ISO weeks, 2021 does not.
	w, ok = ParseWeek("2020-w53")
	require.True(t, ok)
	require.Equal(t, date(2020, 12, 28), w.Start)

	_, ok = ParseWeek("2021-W53")
	require.False(t, ok)
	_, ok = ParseWeek("2021-W5")
	require.False(t, ok)
}

func TestWindowContains(t *testing.T) {
	t.Parallel()
	w, ok := ParseDay("2025-03-04")
	require.True(t, ok)
	require.True(t, w.Contains(time.Date(2025, 3, 4, 23, 59, 59, 0, time.UTC)))
	require.False(t, w.Contains(date(2025, 3, 5)))
	require.False(t, w.Contains(date(2025, 3, 3)))
}
