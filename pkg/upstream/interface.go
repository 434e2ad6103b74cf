// Package upstream contains the clients for the external day-ahead price
// providers.
package upstream

import (
	"context"
	"time"

	"github.com/spotwatt/spotwatt/pkg/types"
)

// Provider defines the interface for fetching day-ahead electricity prices.
type Provider interface {
	// GetPrices returns the hourly prices for country covering [start, end),
	// ordered by time. An empty series with a nil error means the upstream
	// answered but published nothing usable for the window. Failures are
	// returned as *types.FetchError.
	GetPrices(ctx context.Context, country string, start, end time.Time) ([]types.PricePoint, error)
}
