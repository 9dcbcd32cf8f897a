package canon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadString(t *testing.T) {
	payload := map[string]any{
		"headline": "  Big news  ",
		"title":    "Other",
		"empty":    "   ",
		"number":   42,
	}

	assert.Equal(t, "Big news", PayloadString(payload, "headline", "title"))
	assert.Equal(t, "Other", PayloadString(payload, "missing", "title"))
	assert.Equal(t, "", PayloadString(payload, "empty"))
	assert.Equal(t, "", PayloadString(payload, "number"))
	assert.Equal(t, "", PayloadString(payload, "missing"))
}

func TestPayloadTime(t *testing.T) {
	ts, ok := PayloadTime(map[string]any{"datetime": float64(1704067200)})
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	// datetime wins over published_at.
	ts, ok = PayloadTime(map[string]any{
		"datetime":     float64(1704067200),
		"published_at": "2030-01-01T00:00:00Z",
	})
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	// published_at is the fallback, including when datetime is unparseable.
	ts, ok = PayloadTime(map[string]any{
		"datetime":     "garbage",
		"published_at": "2024-06-01T10:00:00Z",
	})
	require.True(t, ok)
	assert.Equal(t, time.June, ts.Month())

	_, ok = PayloadTime(map[string]any{})
	assert.False(t, ok)
}

func TestCleanSymbols(t *testing.T) {
	got := CleanSymbols([]string{" aapl", "MSFT ", "", "aapl", "goog"})
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, got)

	assert.Nil(t, CleanSymbols(nil))
	assert.Nil(t, CleanSymbols([]string{"", "  "}))
}
