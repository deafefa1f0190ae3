// Package sandbox defines abstractions for long-lived execution environments.
//
// An environment exposes the three primitives the compile pipeline needs:
// writing a file in, running a command, and reading a file back. Environments
// are borrowed from a Pool by a stable key and stay warm between requests -
// callers never create or destroy them.
package sandbox

import (
	"context"
)

// Environment is a handle to one reusable execution environment.
//
// Implementations should:
//   - Be safe for concurrent use; isolation between concurrent jobs is the
//     caller's responsibility via unique filenames.
//   - Honor context cancellation on every call.
type Environment interface {
	// WriteFile writes data to path inside the environment, replacing any
	// existing file.
	WriteFile(ctx context.Context, path string, data []byte) error

	// ReadFile returns the contents of path inside the environment.
	// Returns ErrFileNotFound if the file does not exist.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Exec runs a command inside the environment and waits for it to finish.
	// The command is invoked as an argument vector, never through shell
	// string interpolation. A non-zero exit status is reported in the
	// result, not as an error; the error return covers transport failures
	// only.
	Exec(ctx context.Context, name string, args ...string) (*ExecResult, error)
}

// Pool hands out environments by a stable key.
//
// Lookup never constructs per-request state: all requests against one
// deployment address the same logical key, and the pool decides which warm
// environment instance serves the call.
type Pool interface {
	// Lookup returns an environment for the given pool key.
	// Returns ErrNoEnvironment when no environment can serve the key.
	Lookup(ctx context.Context, key string) (Environment, error)

	// Close releases any resources held by the pool.
	Close() error
}

// ExecResult holds the observable outcome of one command execution.
type ExecResult struct {
	// ExitCode is the command's exit status. Zero means success.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string
}

// Success reports whether the command exited with status zero.
func (r *ExecResult) Success() bool {
	return r.ExitCode == 0
}
