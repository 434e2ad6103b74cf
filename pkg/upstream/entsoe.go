package upstream

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
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

// dayAheadDocumentType is the ENTSO-E document type for day-ahead prices.
const dayAheadDocumentType = "A44"

// entsoeZones maps country codes to ENTSO-E bidding-zone EIC codes. Countries
// missing here cannot be served by the fallback at all.
var entsoeZones = map[string]string{
	"EE": "10Y1001A1001A39I",
	"FI": "10YFI-1--------U",
	"LV": "10YLV-1001A00074",
	"LT": "10YLT-1001A0008B",
	"SE": "10YSE-1--------K",
	"NO": "10YNO-0--------C",
	"DK": "10Y1001A1001A65H",
	"PL": "10YPL-AREA-----S",
}

// ENTSOE implements Provider for the ENTSO-E transparency platform. It is
// the fallback source: requests are keyed by bidding-zone EIC code rather
// than country, and responses are XML market documents.
type ENTSOE struct {
	apiURL string
	token  string
	client *http.Client
}

// ConfiguredENTSOE sets up flags for ENTSO-E and returns the instance.
func ConfiguredENTSOE() *ENTSOE {
	c := &ENTSOE{
		client: common.HTTPClient(30 * time.Second),
	}
	apiURL := lflag.String("entsoe-api-url", "https://web-api.tp.entsoe.eu/api", "URL for the ENTSO-E transparency API")
	token := lflag.String("entsoe-api-token", "", "Security token for the ENTSO-E transparency API")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.token = *token
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("entsoe validation failed: %v", err))
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *ENTSOE) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("entsoe-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse entsoe url (%s): %w", c.apiURL, err)
	}
	return nil
}

// entsoeDocument covers both roots the API answers with: a publication
// document carrying the series, or an acknowledgement carrying a reason.
type entsoeDocument struct {
	XMLName    xml.Name
	Reason     entsoeReason       `xml:"Reason"`
	TimeSeries []entsoeTimeSeries `xml:"TimeSeries"`
}

type entsoeReason struct {
	Code string `xml:"code"`
	Text string `xml:"text"`
}

type entsoeTimeSeries struct {
	Periods []entsoePeriod `xml:"Period"`
}

type entsoePeriod struct {
	TimeInterval struct {
		Start string `xml:"start"`
	} `xml:"timeInterval"`
	Resolution string        `xml:"resolution"`
	Points     []entsoePoint `xml:"Point"`
}

type entsoePoint struct {
	Position int    `xml:"position"`
	Price    string `xml:"price.amount"`
}

// GetPrices fetches day-ahead prices for country covering [start, end).
// A country without a zone mapping fails immediately with
// FetchErrorUnsupportedCountry; no request is made in that case.
func (c *ENTSOE) GetPrices(ctx context.Context, country string, start, end time.Time) ([]types.PricePoint, error) {
	zone, ok := entsoeZones[strings.ToUpper(country)]
	if !ok {
		return nil, &types.FetchError{
			Kind:   types.FetchErrorUnsupportedCountry,
			Detail: fmt.Sprintf("no bidding zone mapping for country %q", country),
		}
	}

	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Err: err}
	}
	params := url.Values{}
	params.Set("securityToken", c.token)
	params.Set("documentType", dayAheadDocumentType)
	params.Set("in_Domain", zone)
	params.Set("out_Domain", zone)
	params.Set("periodStart", start.UTC().Format("200601021504"))
	params.Set("periodEnd", end.UTC().Format("200601021504"))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Err: err}
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching prices from entsoe", slog.String("zone", zone))

	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch entsoe prices", slog.Any("error", err))
		return nil, types.ClassifyFetchError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.ClassifyFetchError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			Kind:       types.FetchErrorServer,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(body),
		}
	}

	var doc entsoeDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode entsoe response", slog.Any("error", err))
		return nil, &types.FetchError{Kind: types.FetchErrorParsing, Err: err}
	}

	if doc.XMLName.Local == "Acknowledgement_MarketDocument" {
		// "No matching data found" is the structured no-data signal, not a
		// fault; anything else in an acknowledgement is a real rejection.
		if strings.Contains(strings.ToLower(doc.Reason.Text), "no matching data") {
			return nil, &types.FetchError{Kind: types.FetchErrorNoData, Detail: doc.Reason.Text}
		}
		return nil, &types.FetchError{Kind: types.FetchErrorUnknown, Detail: doc.Reason.Text}
	}

	return c.parseSeries(ctx, zone, doc)
}

func (c *ENTSOE) parseSeries(ctx context.Context, zone string, doc entsoeDocument) ([]types.PricePoint, error) {
	var points []types.PricePoint
	for _, ts := range doc.TimeSeries {
		for _, period := range ts.Periods {
			periodStart, err := time.Parse("2006-01-02T15:04Z", period.TimeInterval.Start)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to parse entsoe period start", slog.String("value", period.TimeInterval.Start), slog.Any("error", err))
				continue
			}
			step, err := resolutionStep(period.Resolution)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "unsupported entsoe resolution", slog.String("value", period.Resolution))
				continue
			}

			for _, p := range period.Points {
				eurPerMWH, err := decimal.NewFromString(p.Price)
				if err != nil {
					log.Ctx(ctx).WarnContext(ctx, "failed to parse entsoe price", slog.String("value", p.Price), slog.Any("error", err))
					continue
				}
				// positions are 1-based and may skip values, leaving a gap in
				// the series
				points = append(points, types.PricePoint{
					TSStart:   periodStart.Add(time.Duration(p.Position-1) * step).UTC(),
					EURPerKWH: eurPerMWH.Shift(-3),
				})
			}
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TSStart.Before(points[j].TSStart)
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched entsoe prices",
		slog.String("zone", zone),
		slog.Int("count", len(points)),
	)
	return points, nil
}

// resolutionStep converts an ISO-8601 interval duration like PT60M into the
// step between positioned points.
func resolutionStep(resolution string) (time.Duration, error) {
	switch resolution {
	case "PT60M", "PT1H":
		return time.Hour, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT15M":
		return 15 * time.Minute, nil
	}
	return 0, fmt.Errorf("unsupported resolution: %s", resolution)
}

// errorDetail extracts the acknowledgement reason from an error body when
// there is one, otherwise returns the trimmed body itself.
func errorDetail(body []byte) string {
	var doc entsoeDocument
	if err := xml.Unmarshal(body, &doc); err == nil && doc.Reason.Text != "" {
		return doc.Reason.Text
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}
