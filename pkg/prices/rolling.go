package prices

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spotwatt/spotwatt/pkg/log"
	"github.com/spotwatt/spotwatt/pkg/store"
	"github.com/spotwatt/spotwatt/pkg/types"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidDays is returned when a rolling average is requested for a
// non-positive day count.
var ErrInvalidDays = errors.New("days must be a positive number")

// RollingAverage computes the mean day-ahead price for country over the
// `days` calendar dates ending yesterday. Today is excluded because its
// auction settlement may still be incomplete.
//
// Days already in the daily cache are reused as-is. Missing days are fetched
// concurrently, one single-day fetch each, bypassing the series cache; a day
// with a non-empty series gets its average written into the daily cache
// permanently. A day with no data at all simply contributes nothing.
//
// If any per-day fetch fails hard, the whole call fails with that error.
// Sibling fetches are not cancelled: days that finish anyway still land in
// the daily cache even though the aggregate call reports failure.
func (s *Service) RollingAverage(ctx context.Context, country string, days int) (types.RollingAverage, error) {
	if days <= 0 {
		return types.RollingAverage{}, ErrInvalidDays
	}
	country = strings.ToUpper(country)

	today := truncateDay(s.now().UTC())
	end := today.AddDate(0, 0, -1)
	start := today.AddDate(0, 0, -days)

	cached := s.daily.GetRange(ctx, country, start, end)
	var missing []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := cached[store.DateKey(d)]; !ok {
			missing = append(missing, d)
		}
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"computing rolling average",
		slog.String("country", country),
		slog.Int("days", days),
		slog.Int("cached", len(cached)),
		slog.Int("missing", len(missing)),
	)

	// deliberately not errgroup.WithContext: a failing day must not cancel
	// its siblings, whose finished averages stay in the daily cache
	var g errgroup.Group
	for _, day := range missing {
		g.Go(func() error {
			points, err := s.GetPrices(ctx, country, day, day.AddDate(0, 0, 1), false)
			if err != nil {
				return err
			}
			if len(points) == 0 {
				log.Ctx(ctx).DebugContext(ctx, "no prices for day", slog.String("country", country), slog.Time("day", day))
				return nil
			}
			s.daily.Put(ctx, country, day, types.AveragePrice(points))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.RollingAverage{}, err
	}

	averages := s.daily.GetRange(ctx, country, start, end)
	if len(averages) == 0 {
		return types.RollingAverage{}, &types.FetchError{
			Kind:   types.FetchErrorNoData,
			Detail: "no prices available for the requested range",
		}
	}

	values := make([]decimal.Decimal, 0, len(averages))
	for _, avg := range averages {
		values = append(values, avg)
	}

	return types.RollingAverage{
		Country:        country,
		DaysRequested:  days,
		DaysCalculated: len(averages),
		StartDate:      start,
		EndDate:        end,
		AveragePrice:   decimal.Avg(values[0], values[1:]...),
	}, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
