package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Task result repository sentinels.
	ErrJobIDRequired = errors.New("job_id is required")
)
