package importer

import "errors"

// Sentinel kinds for import errors.
var (
	ErrUnknownKind    = errors.New("unknown import kind")
	ErrMissingColumns = errors.New("missing required columns")
	ErrEmptyInput     = errors.New("empty input")
	ErrInvalidRow     = errors.New("invalid row")
)
