package store

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/spotwatt/spotwatt/pkg/types"
)

// seriesTTL is how long a fetched series stays fresh. Day-ahead prices are
// published once daily and immutable afterwards, so an hour is plenty while
// still bounding how long a bad upstream response can linger.
const seriesTTL = 60 * time.Minute

const keyTimeLayout = "2006-01-02T15:04Z"

// SeriesKey derives the cache key for a country and window. Semantically
// identical windows must produce identical keys, so instants are formatted
// in UTC at minute precision.
func SeriesKey(country string, start, end time.Time) string {
	return strings.ToUpper(country) + "|" + start.UTC().Format(keyTimeLayout) + "|" + end.UTC().Format(keyTimeLayout)
}

// SeriesEntry is a cached series plus its expiry instant.
type SeriesEntry struct {
	Data   []types.PricePoint `json:"data"`
	Expiry time.Time          `json:"expiry"`
}

// SeriesCache caches raw price series with a fixed TTL. Expiry is lazy:
// entries are evicted when read past their expiry, there is no sweeper.
type SeriesCache struct {
	store Snapshotter[map[string]SeriesEntry]
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]SeriesEntry
}

// NewSeriesCache loads the last snapshot from store, dropping entries that
// expired while the process was down.
func NewSeriesCache(ctx context.Context, store Snapshotter[map[string]SeriesEntry]) *SeriesCache {
	c := &SeriesCache{
		store:   store,
		now:     time.Now,
		entries: make(map[string]SeriesEntry),
	}
	c.loadSnapshot(ctx)
	return c
}

func (c *SeriesCache) loadSnapshot(ctx context.Context) {
	snapshot, ok := c.store.Load(ctx)
	if !ok {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range snapshot {
		if now.Before(entry.Expiry) {
			c.entries[key] = entry
		}
	}
}

// Get returns the cached series for key if it has not expired. An expired
// entry is evicted and reported as a miss.
func (c *SeriesCache) Get(ctx context.Context, key string) ([]types.PricePoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.Expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Data, true
}

// Put stores data under key with a fresh TTL, replacing any prior entry, and
// snapshots the whole cache to the store in the background.
func (c *SeriesCache) Put(ctx context.Context, key string, data []types.PricePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = SeriesEntry{Data: data, Expiry: c.now().Add(seriesTTL)}
	// submitted under the lock so snapshot order matches the store's write
	// order; the disk write itself happens in the background
	c.store.Persist(ctx, maps.Clone(c.entries))
}

// Clear empties the cache immediately and deletes the backing snapshot in
// the background.
func (c *SeriesCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]SeriesEntry)
	c.store.Clear(ctx)
}

// Close waits for outstanding persistence work.
func (c *SeriesCache) Close() error {
	c.store.Flush()
	return nil
}
