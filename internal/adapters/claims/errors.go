package claims

import "errors"

// Sentinel kinds for identity errors.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("user not found")
	ErrBootstrapRetired = errors.New("bootstrap already used")
	ErrInvalidEmail     = errors.New("invalid email")
)
