// Package local implements sandbox.Pool for host-process execution.
//
// Files live under a root directory on the host and commands run as ordinary
// child processes. This is intended for development and integration testing
// on machines that have tectonic and curl installed; production deployments
// use the docker pool.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/texforge/texforge/pkg/sandbox"
)

type Config struct {
	// WorkspaceDir is the host directory backing the sandbox workspace.
	// Absolute paths passed to the environment must live under it.
	WorkspaceDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.WorkspaceDir) == "" {
		return fmt.Errorf("workspace dir is required")
	}
	return nil
}

// Pool implements sandbox.Pool with a single host-backed environment shared
// by every key.
type Pool struct {
	env *Environment

	mu     sync.Mutex
	closed bool
}

var _ sandbox.Pool = (*Pool)(nil)

// New creates the pool and its workspace directory.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir := filepath.Clean(cfg.WorkspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &sandbox.Error{Op: "New", Path: dir, Err: err}
	}
	return &Pool{env: &Environment{workspace: dir}}, nil
}

// Lookup returns the shared host environment regardless of key. The key
// still namespaces callers logically; on a single host there is only one
// place to run.
func (p *Pool) Lookup(ctx context.Context, key string) (sandbox.Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, &sandbox.Error{Op: "Lookup", Key: key, Err: sandbox.ErrNoEnvironment}
	}
	return p.env, nil
}

// Close marks the pool closed. Workspace contents are left in place.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Environment executes against the host filesystem and process table.
type Environment struct {
	workspace string
}

var _ sandbox.Environment = (*Environment)(nil)

// resolve maps an environment path onto the host, rejecting escapes from the
// workspace.
func (e *Environment) resolve(op, path string) (string, error) {
	host := filepath.Clean(path)
	if !strings.HasPrefix(host, e.workspace+string(filepath.Separator)) && host != e.workspace {
		return "", &sandbox.Error{Op: op, Path: path, Err: fmt.Errorf("path outside workspace %s", e.workspace)}
	}
	return host, nil
}

func (e *Environment) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host, err := e.resolve("WriteFile", path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(host, data, 0o644); err != nil {
		return &sandbox.Error{Op: "WriteFile", Path: path, Err: err}
	}
	return nil
}

func (e *Environment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, err := e.resolve("ReadFile", path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = sandbox.ErrFileNotFound
		}
		return nil, &sandbox.Error{Op: "ReadFile", Path: path, Err: err}
	}
	return data, nil
}

func (e *Environment) Exec(ctx context.Context, name string, args ...string) (*sandbox.ExecResult, error) {
	var stdout, stderr strings.Builder

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workspace
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &sandbox.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &sandbox.Error{Op: "Exec", Path: name, Err: err}
	}
	return result, nil
}
