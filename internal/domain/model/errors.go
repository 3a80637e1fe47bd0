package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrUnknownValue = errors.New("unknown value")
	ErrInvalid      = errors.New("invalid record")
)
