package analysis

import "errors"

var (
	// ErrInsufficientData is returned when there is not enough data to compute a result.
	ErrInsufficientData = errors.New("analysis: insufficient data")

	// ErrInvalidInput is returned when model inputs are out of range.
	ErrInvalidInput = errors.New("analysis: invalid input")
)
