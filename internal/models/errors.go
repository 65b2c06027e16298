package models

import (
	"fmt"
	"strings"
)

// ModelNotFoundError reports a model absent from the backend's available
// set. Available holds the full set, sorted.
type ModelNotFoundError struct {
	Model     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("model %q not found: no models available", e.Model)
	}
	return fmt.Sprintf("model %q not found; available: %s", e.Model, strings.Join(e.Available, ", "))
}

// ModelConnectionError reports that the available set could not be fetched.
type ModelConnectionError struct {
	Err error
}

func (e *ModelConnectionError) Error() string {
	return fmt.Sprintf("listing models: %v", e.Err)
}

func (e *ModelConnectionError) Unwrap() error {
	return e.Err
}
