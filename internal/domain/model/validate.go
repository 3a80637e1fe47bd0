package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the individual's field constraints.
func (i Individual) Validate() error { return check(i) }

// Validate checks the interaction's field constraints, including a usable date.
func (it Interaction) Validate() error {
	if err := check(it); err != nil {
		return err
	}
	if !ValidDate(it.Date) {
		return fmt.Errorf("%w: date is required", ErrInvalid)
	}
	return nil
}

// Validate checks the action's field constraints, including a usable start date.
func (a DevelopmentAction) Validate() error {
	if err := check(a); err != nil {
		return err
	}
	if !ValidDate(a.StartDate) {
		return fmt.Errorf("%w: start date is required", ErrInvalid)
	}
	if ValidDate(a.EndDate) && a.EndDate.Before(a.StartDate) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalid)
	}
	return nil
}

// check flattens validator output into one readable error.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
