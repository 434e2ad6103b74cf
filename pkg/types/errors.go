package types

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchErrorKind classifies an upstream fetch failure.
type FetchErrorKind string

const (
	// FetchErrorNetwork covers connection-level failures before a response
	// was received.
	FetchErrorNetwork FetchErrorKind = "network"
	// FetchErrorServer covers non-success HTTP responses; StatusCode is set.
	FetchErrorServer FetchErrorKind = "server"
	// FetchErrorTimeout covers deadline and client-timeout failures.
	FetchErrorTimeout FetchErrorKind = "timeout"
	// FetchErrorParsing covers responses that could not be decoded.
	FetchErrorParsing FetchErrorKind = "parsing"
	// FetchErrorUnknown covers everything not otherwise classified.
	FetchErrorUnknown FetchErrorKind = "unknown"
	// FetchErrorNoData is the structured "no matching data for the period"
	// signal. It is non-fatal: the fetch layer converts it into an empty
	// successful series and it should never surface to an API caller.
	FetchErrorNoData FetchErrorKind = "noData"
	// FetchErrorUnsupportedCountry means the country has no fallback zone
	// mapping and the fallback upstream cannot be queried for it.
	FetchErrorUnsupportedCountry FetchErrorKind = "unsupportedCountry"
)

// FetchError is a classified upstream failure. Kind is always set,
// StatusCode only for FetchErrorServer, Detail carries upstream-provided
// text when available.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of err, or FetchErrorUnknown if err is
// not a *FetchError.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchErrorUnknown
}

// ClassifyFetchError wraps a transport-level error into a *FetchError.
// Already-classified errors pass through unchanged.
func ClassifyFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchErrorTimeout, Err: err}
	}
	// url.Error (returned by http.Client) implements net.Error and reports
	// Timeout for client-timeout aborts.
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return &FetchError{Kind: FetchErrorTimeout, Err: err}
		}
		return &FetchError{Kind: FetchErrorNetwork, Err: err}
	}
	return &FetchError{Kind: FetchErrorUnknown, Err: err}
}
