package fl

import "errors"

var (
	// ErrNoUpdates indicates a round was closed before any client reported.
	ErrNoUpdates = errors.New("round has no client updates to aggregate")

	// ErrOverflow indicates the summed sample counts exceed what a float64
	// weight can hold exactly.
	ErrOverflow = errors.New("total sample count exceeds 2^53")

	ErrNegativeSamples = errors.New("negative sample count")
	ErrInvalidID       = errors.New("identifier has no file-safe characters")
)
