package hybrid

import "errors"

// Sentinel kinds for hybrid scorer configuration errors.
var (
	ErrInvalidWeights = errors.New("invalid hybrid weights")
)
