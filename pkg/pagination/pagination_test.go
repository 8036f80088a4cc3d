package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+10))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	in := Cursor{CreatedAt: time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("not-base64!")
	require.Error(t, err)
}

func TestPage(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	rows := []Cursor{
		{CreatedAt: now, ID: uuid.New()},
		{CreatedAt: now.Add(-time.Minute), ID: uuid.New()},
		{CreatedAt: now.Add(-2 * time.Minute), ID: uuid.New()},
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Page(rows, 2, identity)
	require.Len(t, page, 2)
	require.Equal(t, EncodeCursor(rows[1]), next)

	page, next = Page(rows, 5, identity)
	require.Len(t, page, 3)
	require.Empty(t, next)
}

func TestCursorIsQuerySafe(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 891, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(c)
	require.NotContains(t, encoded, "+")
	require.NotContains(t, encoded, "/")
	require.NotContains(t, encoded, "=")
}
