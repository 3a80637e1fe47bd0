package compliance

import (
	"errors"
	"fmt"
)

// Sentinel kinds for evaluation errors. ErrInvalidRange and ErrUnknownType
// both wrap ErrValidation so callers can classify with a single errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidRange = fmt.Errorf("%w: start date is after end date", ErrValidation)
	ErrUnknownType  = fmt.Errorf("%w: unknown interaction type", ErrValidation)
)
