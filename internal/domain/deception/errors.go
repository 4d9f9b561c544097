package deception

import "errors"

// Sentinel kinds for filter configuration errors.
var (
	ErrInvalidOption = errors.New("invalid deception filter option")
)
