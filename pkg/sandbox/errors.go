package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox operations.
var (
	// ErrFileNotFound indicates the requested file does not exist in the
	// environment.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoEnvironment indicates the pool has no environment able to serve
	// the requested key.
	ErrNoEnvironment = errors.New("no environment available")

	// ErrEnvironmentUnavailable indicates the environment exists but cannot
	// currently be reached.
	ErrEnvironmentUnavailable = errors.New("environment unavailable")
)

// Error wraps environment-specific failures with operation context.
type Error struct {
	// Op is the operation that failed (e.g. "WriteFile", "Exec").
	Op string

	// Key is the pool key, if applicable.
	Key string

	// Path is the file path involved, if applicable.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("sandbox %s: %s: %v", e.Op, e.Path, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("sandbox %s: %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsFileNotFound returns true if the error indicates a missing file.
func IsFileNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

// IsNoEnvironment returns true if the error indicates no environment could
// serve a pool key.
func IsNoEnvironment(err error) bool {
	return errors.Is(err, ErrNoEnvironment)
}
