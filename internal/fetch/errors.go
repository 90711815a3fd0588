package fetch

import (
	"errors"
	"fmt"
)

// ClassifiedError is the only error type crossing the engine boundary. Code
// preserves the provider's original error code for diagnostics.
type ClassifiedError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain. Errors that never
// passed through the engine boundary classify as KindInternal.
func KindOf(err error) Kind {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}
