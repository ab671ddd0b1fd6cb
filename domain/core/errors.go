package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrConfiguration marks requests that can never succeed as configured:
	// empty gene sets, unknown methods, impossible permutation budgets.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataShape marks inputs whose dimensions disagree with their labels
	// or with each other.
	ErrDataShape = errors.New("data shape error")

	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	ErrEmptyGeneSet = fmt.Errorf("%w: gene set has no members in the dataset", ErrConfiguration)
	ErrNoOverlap    = fmt.Errorf("%w: no overlap of genes in gene sets and dataset", ErrConfiguration)
	ErrNoGeneSets   = fmt.Errorf("%w: no gene sets", ErrConfiguration)
)

// Error constructors with context
func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, reason)
}

func NewDataShapeError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataShape, fmt.Sprintf(format, args...))
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsDataShapeError(err error) bool {
	return errors.Is(err, ErrDataShape)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
