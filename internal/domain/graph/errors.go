package graph

import "errors"

// Sentinel kinds for snapshot validation errors.
var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrEmptyNodeID   = errors.New("empty node id")
)
