package pipeline

import (
	"fmt"
)

// logUnavailable is substituted into the diagnostic when the compiler's log
// file cannot be read back.
const logUnavailable = "Log file not available"

// CompileError reports a compiler run that exited non-zero. It carries
// everything needed to produce the caller-facing diagnostic; the log may be
// absent without masking the primary failure.
type CompileError struct {
	// Stderr is the compiler's captured standard error.
	Stderr string

	// Log is the compiler's log file content, when it could be read.
	Log string

	// LogAvailable reports whether Log was successfully read.
	LogAvailable bool
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return "compilation failed"
}

// Diagnostic renders the human-readable failure text returned to callers,
// interleaving stderr and log content.
func (e *CompileError) Diagnostic() string {
	log := e.Log
	if !e.LogAvailable {
		log = logUnavailable
	}
	return fmt.Sprintf("LaTeX Compilation Failed:\n\n--- STDERR ---\n%s\n\n--- LOG FILE ---\n%s", e.Stderr, log)
}

// PublishError reports a failed direct upload of a compiled artifact. It is
// terminal for the request; the upload is never retried.
type PublishError struct {
	// Key is the storage object key the upload targeted.
	Key string

	// Stderr is the transfer command's captured standard error.
	Stderr string
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s", e.Key, e.Stderr)
}
