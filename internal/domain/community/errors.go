package community

import "errors"

// Sentinel kinds for detector configuration errors.
var (
	ErrInvalidOption = errors.New("invalid community detector option")
)
