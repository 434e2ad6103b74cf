package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single hourly day-ahead electricity price.
// TSStart is the beginning of the hour in UTC. EURPerKWH is the price in
// euros per kilowatt-hour (upstreams publish EUR/MWh; clients of this type
// always see the converted value).
type PricePoint struct {
	TSStart   time.Time       `json:"tsStart"`
	EURPerKWH decimal.Decimal `json:"eurPerKWH"`
}

// AveragePrice returns the arithmetic mean price over points. It returns
// decimal.Zero for an empty series; callers that care about the distinction
// between "no data" and "average of zero" must check the length themselves.
func AveragePrice(points []PricePoint) decimal.Decimal {
	if len(points) == 0 {
		return decimal.Zero
	}
	prices := make([]decimal.Decimal, len(points))
	for i, p := range points {
		prices[i] = p.EURPerKWH
	}
	return decimal.Avg(prices[0], prices[1:]...)
}

// RollingAverage reports the outcome of a rolling-average computation.
// DaysCalculated may be less than DaysRequested when some days in the window
// had no published prices at all.
type RollingAverage struct {
	Country        string          `json:"country"`
	DaysRequested  int             `json:"daysRequested"`
	DaysCalculated int             `json:"daysCalculated"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	AveragePrice   decimal.Decimal `json:"averagePrice"`
}
