package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical format for daily-cache date keys. The key
// strings (uppercase ISO country, ISO date) are part of the snapshot format
// and must stay stable across restarts.
const DateLayout = "2006-01-02"

// DateKey formats t as a daily-cache date key.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DailyAverageCache permanently stores one average price per country and
// calendar date. A historical day's average never changes once written, so
// there is no expiry logic anywhere in here.
type DailyAverageCache struct {
	store Snapshotter[map[string]map[string]decimal.Decimal]

	mu       sync.Mutex
	averages map[string]map[string]decimal.Decimal
}

// NewDailyAverageCache loads the last snapshot from store.
func NewDailyAverageCache(ctx context.Context, store Snapshotter[map[string]map[string]decimal.Decimal]) *DailyAverageCache {
	c := &DailyAverageCache{
		store:    store,
		averages: make(map[string]map[string]decimal.Decimal),
	}
	c.loadSnapshot(ctx)
	return c
}

func (c *DailyAverageCache) loadSnapshot(ctx context.Context) {
	snapshot, ok := c.store.Load(ctx)
	if !ok {
		return
	}
	// JSON null is valid to the decoder but leaves nil maps behind; normalize
	// so Put never assigns into one
	if snapshot == nil {
		return
	}
	for country, byDate := range snapshot {
		if byDate == nil {
			delete(snapshot, country)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.averages = snapshot
}

// Get returns the stored average for country and date, if present.
func (c *DailyAverageCache) Get(ctx context.Context, country string, date time.Time) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg, ok := c.averages[strings.ToUpper(country)][DateKey(date)]
	return avg, ok
}

// Put stores the average for country and date and snapshots the entire cache
// to the store in the background. Persisting the whole cache on every single
// write is wasteful, but writes only happen once per newly discovered day.
func (c *DailyAverageCache) Put(ctx context.Context, country string, date time.Time, avg decimal.Decimal) {
	country = strings.ToUpper(country)

	c.mu.Lock()
	byDate := c.averages[country]
	if byDate == nil {
		byDate = make(map[string]decimal.Decimal)
		c.averages[country] = byDate
	}
	byDate[DateKey(date)] = avg
	// submitted under the lock so snapshot order matches the store's write
	// order; the disk write itself happens in the background
	c.store.Persist(ctx, c.cloneLocked())
	c.mu.Unlock()
}

// GetRange returns the averages already cached for country between start and
// end (both inclusive), keyed by date. It never triggers a fetch; absent
// dates are simply missing from the result.
func (c *DailyAverageCache) GetRange(ctx context.Context, country string, start, end time.Time) map[string]decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]decimal.Decimal)
	byDate, ok := c.averages[strings.ToUpper(country)]
	if !ok {
		return out
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := DateKey(d)
		if avg, ok := byDate[key]; ok {
			out[key] = avg
		}
	}
	return out
}

// Clear empties the cache immediately and deletes the backing snapshot in
// the background.
func (c *DailyAverageCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.averages = make(map[string]map[string]decimal.Decimal)
	c.store.Clear(ctx)
}

// Close waits for outstanding persistence work.
func (c *DailyAverageCache) Close() error {
	c.store.Flush()
	return nil
}

// cloneLocked deep-copies the nested maps so the persist goroutine never
// races an in-memory write. Callers must hold c.mu.
func (c *DailyAverageCache) cloneLocked() map[string]map[string]decimal.Decimal {
	snapshot := make(map[string]map[string]decimal.Decimal, len(c.averages))
	for country, byDate := range c.averages {
		inner := make(map[string]decimal.Decimal, len(byDate))
		for date, avg := range byDate {
			inner[date] = avg
		}
		snapshot[country] = inner
	}
	return snapshot
}
