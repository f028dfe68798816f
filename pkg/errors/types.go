package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// InvalidPatternError represents a glob or regular expression in the
// configuration that failed to compile.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (err InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", err.Pattern, err.Reason)
}
