// Package config loads the pipeline's environment-variable contract into
// typed configuration structs.
package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingEnv indicates required environment variables are absent.
	ErrMissingEnv = errors.New("missing required environment variables")

	// ErrInvalidEnv indicates an environment variable holds an unusable value.
	ErrInvalidEnv = errors.New("invalid environment variable")
)

// MissingEnvError reports every required variable that was absent so an
// operator can fix the deployment in one pass.
type MissingEnvError struct {
	Names []string
}

// Error returns the formatted message with all missing names.
func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Names, ", "))
}

// Unwrap allows errors.Is(err, ErrMissingEnv).
func (e *MissingEnvError) Unwrap() error {
	return ErrMissingEnv
}
