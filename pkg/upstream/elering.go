package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/shopspring/decimal"
	"github.com/spotwatt/spotwatt/pkg/common"
	"github.com/spotwatt/spotwatt/pkg/log"
	"github.com/spotwatt/spotwatt/pkg/types"
)

// Elering implements Provider for the Elering dashboard API, which publishes
// the Nord Pool day-ahead prices for the Baltics and Finland. Prices come
// back in EUR/MWh.
type Elering struct {
	apiURL string
	client *http.Client
}

// ConfiguredElering sets up flags for Elering and returns the instance.
func ConfiguredElering() *Elering {
	c := &Elering{
		client: common.HTTPClient(30 * time.Second),
	}
	apiURL := lflag.String("elering-api-url", "https://dashboard.elering.ee/api", "URL for the Elering dashboard API")

	lflag.Do(func() {
		c.apiURL = *apiURL
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("elering validation failed: %v", err))
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Elering) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("elering-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse elering url (%s): %w", c.apiURL, err)
	}
	return nil
}

type eleringPriceEntry struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

type eleringResponse struct {
	Success bool                           `json:"success"`
	Data    map[string][]eleringPriceEntry `json:"data"`
}

// GetPrices fetches the Nord Pool prices for country covering [start, end).
// The response carries every supported country; only the requested one is
// returned.
func (c *Elering) GetPrices(ctx context.Context, country string, start, end time.Time) ([]types.PricePoint, error) {
	u, err := url.Parse(c.apiURL + "/nps/price")
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Err: err}
	}

	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Err: err}
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching prices from elering", slog.String("url", u.String()))

	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch elering prices", slog.Any("error", err))
		return nil, types.ClassifyFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			Kind:       types.FetchErrorServer,
			StatusCode: resp.StatusCode,
			Detail:     "elering api returned non-success status",
		}
	}

	var res eleringResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode elering response", slog.Any("error", err))
		return nil, &types.FetchError{Kind: types.FetchErrorParsing, Err: err}
	}
	if !res.Success {
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Detail: "elering api reported failure"}
	}

	entries := res.Data[strings.ToLower(country)]
	points := make([]types.PricePoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, types.PricePoint{
			TSStart: time.Unix(e.Timestamp, 0).UTC(),
			// EUR/MWh to EUR/kWh
			EURPerKWH: e.Price.Shift(-3),
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TSStart.Before(points[j].TSStart)
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched elering prices",
		slog.String("country", country),
		slog.Int("count", len(points)),
	)
	return points, nil
}
