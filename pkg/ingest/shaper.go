package ingest

import (
	"sort"
	"time"

	"github.com/sentinelstream/newsflow/pkg/canon"
	"github.com/sentinelstream/newsflow/pkg/config"
)

// ShapeResult is the outcome of rate shaping one ticker's fetch.
type ShapeResult struct {
	Kept          []map[string]any
	DroppedDaily  int
	DroppedLatest int
}

// shapeTickerItems orders a ticker's articles newest first, then applies two
// caps in sequence: at most DailyMax per publication date in the market's
// local time, then at most LatestPerRun of the survivors. Kept items are
// annotated with the requesting ticker. Items without a parseable timestamp
// sort last and share one date bucket.
func shapeTickerItems(items []map[string]any, symbol string, limits config.IntakeConfig, loc *time.Location) ShapeResult {
	ordered := make([]map[string]any, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return publishedOrZero(ordered[i]).After(publishedOrZero(ordered[j]))
	})

	var result ShapeResult
	perDay := make(map[string]int)
	underDaily := make([]map[string]any, 0, len(ordered))
	for _, item := range ordered {
		day := publishedOrZero(item).In(loc).Format("2006-01-02")
		if perDay[day] >= limits.DailyMax {
			result.DroppedDaily++
			continue
		}
		perDay[day]++
		underDaily = append(underDaily, item)
	}

	keepMax := max(limits.LatestPerRun, 0)
	if len(underDaily) > keepMax {
		result.DroppedLatest = len(underDaily) - keepMax
		underDaily = underDaily[:keepMax]
	}
	for _, item := range underDaily {
		item["request_ticker"] = symbol
	}
	result.Kept = underDaily
	return result
}

func publishedOrZero(item map[string]any) time.Time {
	ts, _ := canon.PayloadTime(item)
	return ts
}
