package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/config"
)

func shapeItem(id string, publishedAt time.Time) map[string]any {
	return map[string]any{
		"id":       id,
		"url":      "https://example.com/" + id,
		"headline": "Item " + id,
		"datetime": float64(publishedAt.Unix()),
	}
}

func itemIDs(items []map[string]any) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item["id"].(string))
	}
	return ids
}

func marketLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestShapeKeepsNewestFirst(t *testing.T) {
	loc := marketLocation(t)
	base := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	items := []map[string]any{
		shapeItem("a", base.Add(1*time.Hour)),
		shapeItem("b", base.Add(4*time.Hour)),
		shapeItem("c", base.Add(2*time.Hour)),
		shapeItem("d", base.Add(3*time.Hour)),
	}

	result := shapeTickerItems(items, "AAPL", config.IntakeConfig{LatestPerRun: 3, DailyMax: 100}, loc)

	assert.Equal(t, []string{"b", "d", "c"}, itemIDs(result.Kept))
	assert.Equal(t, 0, result.DroppedDaily)
	assert.Equal(t, 1, result.DroppedLatest)
	for _, item := range result.Kept {
		assert.Equal(t, "AAPL", item["request_ticker"])
	}
}

func TestShapeDailyCapUsesMarketDates(t *testing.T) {
	loc := marketLocation(t)
	// Both instants fall on 2024-01-02 UTC, but midnight in New York splits
	// them across two market dates.
	lateJan1 := time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC)  // Jan 1, 23:00 in NY
	earlyJan2 := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC) // Jan 2, 01:00 in NY
	items := []map[string]any{
		shapeItem("jan1-a", lateJan1),
		shapeItem("jan1-b", lateJan1.Add(-time.Hour)),
		shapeItem("jan2-a", earlyJan2),
		shapeItem("jan2-b", earlyJan2.Add(30*time.Minute)),
	}

	result := shapeTickerItems(items, "MSFT", config.IntakeConfig{LatestPerRun: 10, DailyMax: 1}, loc)

	assert.Equal(t, []string{"jan2-b", "jan1-a"}, itemIDs(result.Kept))
	assert.Equal(t, 2, result.DroppedDaily)
	assert.Equal(t, 0, result.DroppedLatest)
}

func TestShapeDailyCapRunsBeforeLatestCap(t *testing.T) {
	loc := marketLocation(t)
	at := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	items := []map[string]any{
		shapeItem("a", at),
		shapeItem("b", at.Add(time.Minute)),
		shapeItem("c", at.Add(2*time.Minute)),
	}

	result := shapeTickerItems(items, "AAPL", config.IntakeConfig{LatestPerRun: 1, DailyMax: 2}, loc)

	assert.Equal(t, []string{"c"}, itemIDs(result.Kept))
	assert.Equal(t, 1, result.DroppedDaily)
	assert.Equal(t, 1, result.DroppedLatest)
}

func TestShapeUnparseableTimestampsSortLast(t *testing.T) {
	loc := marketLocation(t)
	dated := shapeItem("dated", time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC))
	undated := map[string]any{"id": "undated", "url": "https://example.com/u", "headline": "U"}

	result := shapeTickerItems([]map[string]any{undated, dated}, "AAPL",
		config.IntakeConfig{LatestPerRun: 10, DailyMax: 10}, loc)

	assert.Equal(t, []string{"dated", "undated"}, itemIDs(result.Kept))
}

func TestShapeEmptyInput(t *testing.T) {
	loc := marketLocation(t)
	result := shapeTickerItems(nil, "AAPL", config.DefaultIntakeConfig(), loc)
	assert.Empty(t, result.Kept)
	assert.Equal(t, 0, result.DroppedDaily)
	assert.Equal(t, 0, result.DroppedLatest)
}
