// Package sandboxtest provides an in-memory sandbox implementation for unit
// tests.
package sandboxtest

import (
	"context"
	"strings"
	"sync"

	"github.com/texforge/texforge/pkg/sandbox"
)

// FakeEnvironment is an in-memory sandbox.Environment.
//
// Files live in a map, and Exec is delegated to a caller-supplied function so
// tests can script compiler and upload behavior. Every Exec invocation is
// recorded for later assertion.
type FakeEnvironment struct {
	mu    sync.Mutex
	files map[string][]byte

	// ExecFunc handles Exec calls. When nil every command succeeds with
	// empty output.
	ExecFunc func(ctx context.Context, env *FakeEnvironment, name string, args []string) (*sandbox.ExecResult, error)

	commands [][]string
}

var _ sandbox.Environment = (*FakeEnvironment)(nil)

// NewFakeEnvironment returns an empty environment.
func NewFakeEnvironment() *FakeEnvironment {
	return &FakeEnvironment{files: make(map[string][]byte)}
}

// WriteFile stores data under path.
func (e *FakeEnvironment) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	e.files[path] = buf
	return nil
}

// ReadFile returns the stored contents of path.
func (e *FakeEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[path]
	if !ok {
		return nil, &sandbox.Error{Op: "ReadFile", Path: path, Err: sandbox.ErrFileNotFound}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Exec records the command and delegates to ExecFunc.
func (e *FakeEnvironment) Exec(ctx context.Context, name string, args ...string) (*sandbox.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.commands = append(e.commands, append([]string{name}, args...))
	fn := e.ExecFunc
	e.mu.Unlock()

	if fn == nil {
		return &sandbox.ExecResult{}, nil
	}
	return fn(ctx, e, name, args)
}

// Commands returns a copy of every recorded Exec invocation, in order.
func (e *FakeEnvironment) Commands() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.commands))
	for i, c := range e.commands {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// PutFile seeds a file without going through WriteFile.
func (e *FakeEnvironment) PutFile(path string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[path] = append([]byte(nil), data...)
}

// RemoveFile deletes a single file if present.
func (e *FakeEnvironment) RemoveFile(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, path)
}

// RemovePrefix deletes every file whose path starts with prefix and returns
// how many were removed. Mirrors the `rm -f <base>.*` cleanup a real
// environment performs.
func (e *FakeEnvironment) RemovePrefix(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for path := range e.files {
		if strings.HasPrefix(path, prefix) {
			delete(e.files, path)
			n++
		}
	}
	return n
}

// Paths returns the sorted-insensitive set of file paths currently present.
func (e *FakeEnvironment) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.files))
	for path := range e.files {
		out = append(out, path)
	}
	return out
}

// FakePool is a sandbox.Pool serving fixed environments by key.
type FakePool struct {
	mu   sync.Mutex
	envs map[string]*FakeEnvironment

	// LookupErr, when set, is returned by every Lookup call.
	LookupErr error

	lookups []string
}

var _ sandbox.Pool = (*FakePool)(nil)

// NewFakePool returns a pool that lazily creates one FakeEnvironment per key.
func NewFakePool() *FakePool {
	return &FakePool{envs: make(map[string]*FakeEnvironment)}
}

// Lookup returns the environment registered for key, creating it on first
// use.
func (p *FakePool) Lookup(ctx context.Context, key string) (sandbox.Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups = append(p.lookups, key)
	if p.LookupErr != nil {
		return nil, p.LookupErr
	}
	env, ok := p.envs[key]
	if !ok {
		env = NewFakeEnvironment()
		p.envs[key] = env
	}
	return env, nil
}

// Close implements sandbox.Pool.
func (p *FakePool) Close() error { return nil }

// Env returns the environment for key, creating it if needed, so tests can
// seed or inspect it directly.
func (p *FakePool) Env(key string) *FakeEnvironment {
	p.mu.Lock()
	defer p.mu.Unlock()
	env, ok := p.envs[key]
	if !ok {
		env = NewFakeEnvironment()
		p.envs[key] = env
	}
	return env
}

// Lookups returns every key passed to Lookup, in order.
func (p *FakePool) Lookups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lookups...)
}
