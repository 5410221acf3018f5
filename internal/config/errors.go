package config

import (
	"errors"
	"fmt"
)

// ErrValidationFailed wraps every ValidationError.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError describes a setting with an unusable value.
type ValidationError struct {
	// Key is the dotted setting key.
	Key string
	// Message describes the problem.
	Message string
	// Value is the rejected value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Key, e.Message, e.Value)
}

// Unwrap returns ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ParseError is returned when a config file cannot be read.
type ParseError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
