package export

import "errors"

// Sentinel kinds for export errors.
var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrNoSelection   = errors.New("no individuals selected")
	ErrNoPublisher   = errors.New("publishing is not configured")
)
