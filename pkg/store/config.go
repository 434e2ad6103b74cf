package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/shopspring/decimal"
)

// Configured sets up the file-backed caches based on flags. The snapshots
// are loaded once the flags have been parsed.
func Configured() (*SeriesCache, *DailyAverageCache) {
	dir := lflag.String("cache-dir", ".", "Directory for cache snapshot files")

	series := &SeriesCache{
		now:     time.Now,
		entries: make(map[string]SeriesEntry),
	}
	daily := &DailyAverageCache{
		averages: make(map[string]map[string]decimal.Decimal),
	}

	lflag.Do(func() {
		ctx := context.Background()
		series.store = NewFileStore[map[string]SeriesEntry](filepath.Join(*dir, "price-series.json"))
		series.loadSnapshot(ctx)
		daily.store = NewFileStore[map[string]map[string]decimal.Decimal](filepath.Join(*dir, "daily-averages.json"))
		daily.loadSnapshot(ctx)
	})

	return series, daily
}
