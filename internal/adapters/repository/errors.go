package repository

import "errors"

// Sentinel kinds for datastore errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrBootstrapRetired = errors.New("bootstrap already used")
	ErrClosed           = errors.New("store closed")
)
