package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode"

	"github.com/spotwatt/spotwatt/pkg/log"
	"github.com/spotwatt/spotwatt/pkg/prices"
	"github.com/spotwatt/spotwatt/pkg/types"
)

// defaultRollingDays is the window for the rolling-average endpoint when the
// caller doesn't ask for a specific one.
const defaultRollingDays = 30

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	country, err := parseCountry(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}
	cacheResults := r.URL.Query().Get("cache") != "false"

	points, err := s.prices.GetPrices(ctx, country, start, end, cacheResults)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get prices", slog.String("country", country), slog.Any("error", err))
		writeFetchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Country string             `json:"country"`
		Prices  []types.PricePoint `json:"prices"`
	}{Country: country, Prices: points}); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleRollingAverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	country, err := parseCountry(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	days := defaultRollingDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		days, err = strconv.Atoi(daysStr)
		if err != nil {
			writeJSONError(w, "invalid days: "+daysStr, http.StatusBadRequest)
			return
		}
	}

	result, err := s.prices.RollingAverage(ctx, country, days)
	if err != nil {
		if errors.Is(err, prices.ErrInvalidDays) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to compute rolling average", slog.String("country", country), slog.Int("days", days), slog.Any("error", err))
		writeFetchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleClearCaches(w http.ResponseWriter, r *http.Request) {
	// clearing never fails the request; disk deletes happen in the
	// background and their errors are absorbed below us
	s.prices.ClearCaches(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// writeFetchError maps a classified fetch error onto a response status.
func writeFetchError(w http.ResponseWriter, err error) {
	var status int
	switch types.FetchErrorKindOf(err) {
	case types.FetchErrorUnsupportedCountry:
		status = http.StatusBadRequest
	case types.FetchErrorNoData:
		status = http.StatusNotFound
	case types.FetchErrorTimeout:
		status = http.StatusGatewayTimeout
	case types.FetchErrorNetwork, types.FetchErrorServer, types.FetchErrorParsing:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	writeJSONError(w, err.Error(), status)
}

func parseCountry(r *http.Request) (string, error) {
	country := r.URL.Query().Get("country")
	if len(country) != 2 {
		return "", fmt.Errorf("country must be a two-letter code")
	}
	for _, c := range country {
		if !unicode.IsLetter(c) {
			return "", fmt.Errorf("country must be a two-letter code")
		}
	}
	return country, nil
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" && endStr == "" {
		// Default to yesterday through tomorrow: the window for which
		// day-ahead prices can exist.
		today := time.Now().UTC().Truncate(24 * time.Hour)
		return today.AddDate(0, 0, -1), today.AddDate(0, 0, 2), nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	// the window is half-open, so start == end is empty and rejected too
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	return start, end, nil
}
