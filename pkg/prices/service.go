// Package prices answers price queries, orchestrating the series cache and
// the two upstream providers.
package prices

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spotwatt/spotwatt/pkg/log"
	"github.com/spotwatt/spotwatt/pkg/store"
	"github.com/spotwatt/spotwatt/pkg/types"
	"github.com/spotwatt/spotwatt/pkg/upstream"
)

// Service fetches price series with caching and primary→fallback upstream
// semantics, and computes rolling averages over the daily cache.
type Service struct {
	primary  upstream.Provider
	fallback upstream.Provider
	series   *store.SeriesCache
	daily    *store.DailyAverageCache
	now      func() time.Time
}

// New creates a Service. primary is consulted first on a cache miss;
// fallback only when primary fails or answers with nothing usable.
func New(primary, fallback upstream.Provider, series *store.SeriesCache, daily *store.DailyAverageCache) *Service {
	return &Service{
		primary:  primary,
		fallback: fallback,
		series:   series,
		daily:    daily,
		now:      time.Now,
	}
}

// WithClock overrides the time source used to derive rolling windows and
// returns s. Tests pin it so a window computed near UTC midnight is stable.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetPrices returns the hourly prices for country covering [start, end).
//
// The series cache is consulted first; a live entry short-circuits without
// any network call. Otherwise the primary upstream is tried, treating "no
// usable data" and "failed" identically as a reason to fall back. The
// fallback's structured no-data signal becomes an empty successful series;
// its other failures are returned as classified errors. A non-empty result
// is written through to the cache only when cacheResults is true.
func (s *Service) GetPrices(ctx context.Context, country string, start, end time.Time, cacheResults bool) ([]types.PricePoint, error) {
	country = strings.ToUpper(country)
	key := store.SeriesKey(country, start, end)

	if data, ok := s.series.Get(ctx, key); ok {
		log.Ctx(ctx).DebugContext(ctx, "returning cached prices", slog.String("key", key))
		return data, nil
	}

	points, err := s.primary.GetPrices(ctx, country, start, end)
	switch {
	case err != nil:
		log.Ctx(ctx).WarnContext(ctx, "primary upstream failed, falling back", slog.String("country", country), slog.Any("error", err))
	case len(points) == 0:
		log.Ctx(ctx).WarnContext(ctx, "primary upstream returned no prices, falling back", slog.String("country", country))
	default:
		if cacheResults {
			s.series.Put(ctx, key, points)
		}
		return points, nil
	}

	points, err = s.fallback.GetPrices(ctx, country, start, end)
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.Kind == types.FetchErrorNoData {
			log.Ctx(ctx).DebugContext(ctx, "fallback reported no data for period", slog.String("country", country))
			return []types.PricePoint{}, nil
		}
		log.Ctx(ctx).ErrorContext(ctx, "fallback upstream failed", slog.String("country", country), slog.Any("error", err))
		return nil, types.ClassifyFetchError(err)
	}

	if len(points) > 0 && cacheResults {
		s.series.Put(ctx, key, points)
	}
	return points, nil
}

// ClearCaches empties both caches. It never fails: backing-file deletes
// happen in the background and their errors are absorbed by the store layer.
func (s *Service) ClearCaches(ctx context.Context) {
	log.Ctx(ctx).InfoContext(ctx, "clearing caches")
	s.series.Clear(ctx)
	s.daily.Clear(ctx)
}

// Close waits for outstanding cache persistence.
func (s *Service) Close() error {
	if err := s.series.Close(); err != nil {
		return err
	}
	return s.daily.Close()
}
