// Package simerr holds the error taxonomy shared by every layer of the solver.
package simerr

import (
	"errors"
	"fmt"
)

// Domain errors for simulation setup and solve.
var (
	// ErrConfiguration indicates an inconsistent or invalid problem definition.
	ErrConfiguration = errors.New("h2transport: invalid configuration")

	// ErrDiverged indicates the nonlinear solver could not converge.
	ErrDiverged = errors.New("h2transport: the solver diverged")

	// ErrValueType indicates a value expression produced a non-numeric result.
	ErrValueType = errors.New("h2transport: value is not numeric")
)

// ConfigurationError wraps ErrConfiguration with the offending key.
type ConfigurationError struct {
	Key    string
	Reason string
}

func Configuration(key, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// DivergenceError carries the solve context at the point of failure.
type DivergenceError struct {
	Time       float64
	Step       int
	Iterations int
	Residual   float64
	Reason     string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("the solver diverged at step %d (t=%g, %d iterations, |F|=%g): %s",
		e.Step, e.Time, e.Iterations, e.Residual, e.Reason)
}

func (e *DivergenceError) Unwrap() error {
	return ErrDiverged
}

// ValueTypeError reports the expression and the type it evaluated to.
type ValueTypeError struct {
	Source string
	Got    string
}

func (e *ValueTypeError) Error() string {
	return fmt.Sprintf("value %q evaluates to %s, want a number", e.Source, e.Got)
}

func (e *ValueTypeError) Unwrap() error {
	return ErrValueType
}
