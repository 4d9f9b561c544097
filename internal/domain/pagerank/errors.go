package pagerank

import "errors"

// Sentinel kinds for ranker configuration errors.
var (
	ErrInvalidOption = errors.New("invalid pagerank option")
)
