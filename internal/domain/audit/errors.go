package audit

import "errors"

// Sentinel kinds for auditor errors.
var (
	ErrNilRanker   = errors.New("auditor requires a ranker")
	ErrUnknownNode = errors.New("unknown audit node")
)
