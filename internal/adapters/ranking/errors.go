package ranking

import "errors"

// Sentinel kinds for ranking index errors.
var (
	ErrNotFound     = errors.New("node not ranked")
	ErrInvalidLimit = errors.New("invalid ranking limit")
)
