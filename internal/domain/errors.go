package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when a student or group has no scored submissions.
	ErrNoData = errors.New("not enough data")
	// ErrMissingBaseline indicates a completion-rate baseline was absent or non-positive.
	ErrMissingBaseline = errors.New("completion baseline missing")
	// ErrInvalidSubmission is returned when an ingested record fails validation.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrStudentNotFound indicates the roster has no such student.
	ErrStudentNotFound = errors.New("student not found")
	// ErrQuizNotFound indicates no quiz or submission references the code.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidScope indicates an unknown group level or a scope missing its keys.
	ErrInvalidScope = errors.New("invalid scope")
)

// ConfigurationError reports an external input the caller must supply.
type ConfigurationError struct {
	Field string
	Value int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s must be positive, got %d", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrMissingBaseline
}
