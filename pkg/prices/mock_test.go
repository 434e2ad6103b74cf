package prices

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spotwatt/spotwatt/pkg/store"
	"github.com/spotwatt/spotwatt/pkg/types"
)

// mockProvider is an upstream.Provider driven by a test-supplied function.
type mockProvider struct {
	fn func(ctx context.Context, country string, start, end time.Time) ([]types.PricePoint, error)

	mu    sync.Mutex
	calls int
}

func (m *mockProvider) GetPrices(ctx context.Context, country string, start, end time.Time) ([]types.PricePoint, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn == nil {
		return nil, nil
	}
	return m.fn(ctx, country, start, end)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// testNow pins the clock so rolling windows don't shift if a test straddles
// UTC midnight.
var testNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func newTestService(primary, fallback *mockProvider) *Service {
	ctx := context.Background()
	series := store.NewSeriesCache(ctx, store.NewMemoryStore[map[string]store.SeriesEntry]())
	daily := store.NewDailyAverageCache(ctx, store.NewMemoryStore[map[string]map[string]decimal.Decimal]())
	return New(primary, fallback, series, daily).WithClock(func() time.Time { return testNow })
}

func hourlyPoints(start time.Time, prices ...string) []types.PricePoint {
	points := make([]types.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = types.PricePoint{
			TSStart:   start.Add(time.Duration(i) * time.Hour),
			EURPerKWH: decimal.RequireFromString(p),
		}
	}
	return points
}
