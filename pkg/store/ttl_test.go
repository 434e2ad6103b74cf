package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spotwatt/spotwatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries(t *testing.T) []types.PricePoint {
	t.Helper()
	return []types.PricePoint{
		{TSStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), EURPerKWH: decimal.RequireFromString("0.15")},
		{TSStart: time.Date(2023, 1, 1, 1, 0, 0, 0, time.UTC), EURPerKWH: decimal.RequireFromString("0.12")},
	}
}

func TestSeriesKey(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "EE|2023-01-01T00:00Z|2023-01-03T00:00Z", SeriesKey("ee", start, end))

	// same instants in another zone must produce the same key
	loc := time.FixedZone("EET", 2*60*60)
	assert.Equal(t, SeriesKey("EE", start, end), SeriesKey("EE", start.In(loc), end.In(loc)))
}

func TestSeriesCache(t *testing.T) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		c := NewSeriesCache(ctx, NewMemoryStore[map[string]SeriesEntry]())
		data := testSeries(t)
		c.Put(ctx, "EE|a|b", data)

		got, ok := c.Get(ctx, "EE|a|b")
		require.True(t, ok)
		assert.Equal(t, data, got)

		_, ok = c.Get(ctx, "FI|a|b")
		assert.False(t, ok)
	})

	t.Run("Expiry", func(t *testing.T) {
		c := NewSeriesCache(ctx, NewMemoryStore[map[string]SeriesEntry]())
		now := time.Now()
		c.now = func() time.Time { return now }

		c.Put(ctx, "k", testSeries(t))
		_, ok := c.Get(ctx, "k")
		require.True(t, ok)

		// exactly at expiry counts as stale
		now = now.Add(seriesTTL)
		_, ok = c.Get(ctx, "k")
		assert.False(t, ok)

		// the expired entry was evicted, not resurrected by a later read
		now = now.Add(-seriesTTL)
		_, ok = c.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("PersistReloadDropsExpired", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "series.json")
		fs := NewFileStore[map[string]SeriesEntry](path)

		c := NewSeriesCache(ctx, fs)
		now := time.Now()
		c.now = func() time.Time { return now }
		c.Put(ctx, "fresh", testSeries(t))

		// age the second entry so it is already expired on disk
		c.now = func() time.Time { return now.Add(-2 * seriesTTL) }
		c.Put(ctx, "stale", testSeries(t))
		fs.Flush()

		// simulated restart
		reloaded := NewSeriesCache(ctx, NewFileStore[map[string]SeriesEntry](path))
		got, ok := reloaded.Get(ctx, "fresh")
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.True(t, got[0].EURPerKWH.Equal(decimal.RequireFromString("0.15")))
		assert.Equal(t, testSeries(t)[0].TSStart, got[0].TSStart)

		_, ok = reloaded.Get(ctx, "stale")
		assert.False(t, ok)
	})

	t.Run("Clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "series.json")
		fs := NewFileStore[map[string]SeriesEntry](path)

		c := NewSeriesCache(ctx, fs)
		c.Put(ctx, "k", testSeries(t))
		fs.Flush()

		c.Clear(ctx)
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)

		fs.Flush()
		reloaded := NewSeriesCache(ctx, NewFileStore[map[string]SeriesEntry](path))
		_, ok = reloaded.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		c := NewSeriesCache(ctx, NewMemoryStore[map[string]SeriesEntry]())
		c.Put(ctx, "k", testSeries(t))
		replacement := testSeries(t)[:1]
		c.Put(ctx, "k", replacement)

		got, ok := c.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, replacement, got)
	})
}
