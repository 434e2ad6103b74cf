package prices

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spotwatt/spotwatt/pkg/store"
	"github.com/spotwatt/spotwatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rollingWindow mirrors the engine's window: days calendar dates ending
// yesterday, UTC, derived from the pinned test clock.
func rollingWindow(days int) (time.Time, time.Time) {
	today := truncateDay(testNow.UTC())
	return today.AddDate(0, 0, -days), today.AddDate(0, 0, -1)
}

func TestRollingAverage(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidDays", func(t *testing.T) {
		s := newTestService(&mockProvider{}, &mockProvider{})
		_, err := s.RollingAverage(ctx, "EE", 0)
		require.ErrorIs(t, err, ErrInvalidDays)
		_, err = s.RollingAverage(ctx, "EE", -3)
		require.ErrorIs(t, err, ErrInvalidDays)
	})

	t.Run("AllCachedNoFetches", func(t *testing.T) {
		primary := &mockProvider{}
		fallback := &mockProvider{}
		s := newTestService(primary, fallback)

		startDate, endDate := rollingWindow(3)
		s.daily.Put(ctx, "EE", startDate, decimal.RequireFromString("0.10"))
		s.daily.Put(ctx, "EE", startDate.AddDate(0, 0, 1), decimal.RequireFromString("0.12"))
		s.daily.Put(ctx, "EE", endDate, decimal.RequireFromString("0.14"))

		result, err := s.RollingAverage(ctx, "ee", 3)
		require.NoError(t, err)

		assert.Equal(t, "EE", result.Country)
		assert.Equal(t, 3, result.DaysRequested)
		assert.Equal(t, 3, result.DaysCalculated)
		assert.Equal(t, startDate, result.StartDate)
		assert.Equal(t, endDate, result.EndDate)
		assert.True(t, result.AveragePrice.Equal(decimal.RequireFromString("0.12")), "got %s", result.AveragePrice)

		assert.Equal(t, 0, primary.callCount(), "cached window must not hit upstreams")
		assert.Equal(t, 0, fallback.callCount())
	})

	t.Run("FillsMissingDays", func(t *testing.T) {
		primary := &mockProvider{fn: func(_ context.Context, _ string, start, end time.Time) ([]types.PricePoint, error) {
			// single-day windows only
			if !end.Equal(start.AddDate(0, 0, 1)) {
				t.Errorf("expected a single-day window, got %s..%s", start, end)
			}
			return hourlyPoints(start, "0.10", "0.20"), nil
		}}
		s := newTestService(primary, &mockProvider{})

		startDate, endDate := rollingWindow(3)
		s.daily.Put(ctx, "EE", startDate.AddDate(0, 0, 1), decimal.RequireFromString("0.12"))

		result, err := s.RollingAverage(ctx, "EE", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, result.DaysCalculated)
		assert.Equal(t, 2, primary.callCount())

		// (0.15 + 0.12 + 0.15) / 3
		assert.True(t, result.AveragePrice.Equal(decimal.RequireFromString("0.14")), "got %s", result.AveragePrice)

		// the fetched days are now permanently cached
		avg, ok := s.daily.Get(ctx, "EE", endDate)
		require.True(t, ok)
		assert.True(t, avg.Equal(decimal.RequireFromString("0.15")))

		// single-day lookups bypass the series cache
		_, ok = s.series.Get(ctx, store.SeriesKey("EE", startDate, startDate.AddDate(0, 0, 1)))
		assert.False(t, ok)
	})

	t.Run("EmptyDayContributesNothing", func(t *testing.T) {
		startDate, _ := rollingWindow(3)
		primary := &mockProvider{fn: func(_ context.Context, _ string, start, _ time.Time) ([]types.PricePoint, error) {
			if start.Equal(startDate) {
				// nothing published for the oldest day
				return nil, nil
			}
			return hourlyPoints(start, "0.10"), nil
		}}
		fallback := &mockProvider{fn: func(context.Context, string, time.Time, time.Time) ([]types.PricePoint, error) {
			return nil, &types.FetchError{Kind: types.FetchErrorNoData}
		}}
		s := newTestService(primary, fallback)

		result, err := s.RollingAverage(ctx, "EE", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, result.DaysRequested)
		assert.Equal(t, 2, result.DaysCalculated)
		assert.True(t, result.AveragePrice.Equal(decimal.RequireFromString("0.10")))

		_, ok := s.daily.Get(ctx, "EE", startDate)
		assert.False(t, ok, "an empty day must not be written to the daily cache")
	})

	t.Run("HardErrorFailsCallButKeepsSiblingWrites", func(t *testing.T) {
		startDate, endDate := rollingWindow(3)
		primary := &mockProvider{fn: func(_ context.Context, _ string, start, _ time.Time) ([]types.PricePoint, error) {
			if start.Equal(startDate) {
				return nil, &types.FetchError{Kind: types.FetchErrorNetwork}
			}
			return hourlyPoints(start, "0.10"), nil
		}}
		fallback := &mockProvider{fn: func(context.Context, string, time.Time, time.Time) ([]types.PricePoint, error) {
			return nil, &types.FetchError{Kind: types.FetchErrorServer, StatusCode: 500}
		}}
		s := newTestService(primary, fallback)

		_, err := s.RollingAverage(ctx, "EE", 3)
		require.Error(t, err)
		assert.Equal(t, types.FetchErrorServer, types.FetchErrorKindOf(err))

		// the days that completed were still written durably
		_, ok := s.daily.Get(ctx, "EE", endDate)
		assert.True(t, ok)
		_, ok = s.daily.Get(ctx, "EE", startDate)
		assert.False(t, ok)
	})

	t.Run("NoDataAtAll", func(t *testing.T) {
		primary := &mockProvider{fn: func(context.Context, string, time.Time, time.Time) ([]types.PricePoint, error) {
			return nil, nil
		}}
		fallback := &mockProvider{fn: func(context.Context, string, time.Time, time.Time) ([]types.PricePoint, error) {
			return nil, &types.FetchError{Kind: types.FetchErrorNoData}
		}}
		s := newTestService(primary, fallback)

		_, err := s.RollingAverage(ctx, "EE", 3)
		require.Error(t, err)
		assert.Equal(t, types.FetchErrorNoData, types.FetchErrorKindOf(err))
	})
}
