package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrUnknownStrategy       = errors.New("unknown strategy")
	ErrInvalidParameterSpace = errors.New("invalid parameter space")
	ErrDivisionUndefined     = errors.New("division undefined")
	ErrMalformedBar          = errors.New("malformed bar")
)

// ParameterError names the offending parameter and what was expected of it.
type ParameterError struct {
	Kind       error
	Name       string
	Constraint string
	Value      any
}

func (e *ParameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%v: %s must be %s", e.Kind, e.Name, e.Constraint)
	}
	return fmt.Sprintf("%v: %s must be %s, got %v", e.Kind, e.Name, e.Constraint, e.Value)
}

func (e *ParameterError) Unwrap() error { return e.Kind }

// InvalidParameter builds an ErrInvalidParameter for name.
func InvalidParameter(name, constraint string, value any) error {
	return &ParameterError{Kind: ErrInvalidParameter, Name: name, Constraint: constraint, Value: value}
}

// InsufficientData reports a series that does not exceed the warm-up of what.
func InsufficientData(what string, need, have int) error {
	return fmt.Errorf("%w: %s needs more than %d bars, got %d", ErrInsufficientData, what, need, have)
}
