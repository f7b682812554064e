package market

import "errors"

var (
	// ErrNoData is returned when a source has nothing for the request,
	// typically an unknown ticker or an empty date range.
	ErrNoData = errors.New("market: no data")

	// ErrNotConfigured is returned by sources that need credentials which
	// were not provided.
	ErrNotConfigured = errors.New("market: source not configured")
)
