package engine

import (
	"errors"
	"fmt"
)

var (
	ErrGridExists   = errors.New("a grid is already running for this client and symbol")
	ErrGridNotFound = errors.New("no grid for this client and symbol")
	ErrNoOrders     = errors.New("grid start placed zero orders")
)

// ConfigurationError marks bad inputs that are fatal to a grid start.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// InvariantViolation marks a bug-class inconsistency in grid state,
// e.g. two levels claiming the same exchange order. The affected level
// is forcibly reset and the violation logged; it never crashes a grid.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
