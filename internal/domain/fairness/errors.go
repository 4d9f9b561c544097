package fairness

import "errors"

// Sentinel kinds for fairness adjustment errors.
var (
	ErrInvalidStrength = errors.New("invalid fairness strength")
)
