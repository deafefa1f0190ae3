package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/texforge/texforge/pkg/sandbox"
)

// Environment is a handle bound to one running container.
type Environment struct {
	pool        *Pool
	containerID string
}

var _ sandbox.Environment = (*Environment)(nil)

// WriteFile streams data to path inside the container over an exec session's
// stdin. Using `cat > "$1"` with the path as a positional argument keeps
// file contents and paths out of shell interpolation.
func (e *Environment) WriteFile(ctx context.Context, path string, data []byte) error {
	res, err := e.pool.exec(ctx, e.containerID, data, "sh", "-c", `cat > "$1"`, "sh", path)
	if err != nil {
		return &sandbox.Error{Op: "WriteFile", Path: path, Err: err}
	}
	if !res.Success() {
		return &sandbox.Error{Op: "WriteFile", Path: path, Err: fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))}
	}
	return nil
}

// ReadFile returns the contents of path inside the container.
func (e *Environment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res, err := e.pool.exec(ctx, e.containerID, nil, "cat", path)
	if err != nil {
		return nil, &sandbox.Error{Op: "ReadFile", Path: path, Err: err}
	}
	if !res.Success() {
		underlying := fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		if strings.Contains(res.Stderr, "No such file") {
			underlying = sandbox.ErrFileNotFound
		}
		return nil, &sandbox.Error{Op: "ReadFile", Path: path, Err: underlying}
	}
	return []byte(res.Stdout), nil
}

// Exec runs a command inside the container and captures its streams.
func (e *Environment) Exec(ctx context.Context, name string, args ...string) (*sandbox.ExecResult, error) {
	res, err := e.pool.exec(ctx, e.containerID, nil, name, args...)
	if err != nil {
		return nil, &sandbox.Error{Op: "Exec", Path: name, Err: err}
	}
	return res, nil
}

// exec drives one docker exec session: create, attach, optionally feed
// stdin, demultiplex output, and collect the exit code.
func (p *Pool) exec(ctx context.Context, containerID string, stdin []byte, name string, args ...string) (*sandbox.ExecResult, error) {
	created, err := p.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          append([]string{name}, args...),
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	attach, err := p.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	if stdin != nil {
		go func() {
			_, _ = attach.Conn.Write(stdin)
			_ = attach.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("exec read: %w", err)
	}

	inspect, err := p.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}

	return &sandbox.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// execSimple runs a command discarding output, failing on non-zero exit.
func (p *Pool) execSimple(ctx context.Context, containerID, name string, args ...string) error {
	res, err := p.exec(ctx, containerID, nil, name, args...)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
