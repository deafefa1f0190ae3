// Package docker implements sandbox.Pool on top of warm Docker containers.
package docker

import (
	"fmt"
	"strings"
)

// Config configures the Docker-backed sandbox pool.
type Config struct {
	// Image is the worker image. It must contain tectonic, curl, and a
	// POSIX shell.
	Image string

	// PoolSize is how many warm containers back each pool key.
	// Zero uses DefaultPoolSize.
	PoolSize int

	// WorkspaceDir is the in-container directory holding job files.
	// Zero value uses DefaultWorkspaceDir.
	WorkspaceDir string

	// MemoryBytes is the per-container memory limit. Zero uses
	// DefaultMemoryBytes.
	MemoryBytes int64

	// NanoCPUs is the per-container CPU limit in units of 1e-9 CPUs.
	// Zero uses DefaultNanoCPUs.
	NanoCPUs int64
}

const (
	// DefaultPoolSize is the number of warm containers per pool key.
	DefaultPoolSize = 2

	// DefaultWorkspaceDir is where job files are staged inside a container.
	DefaultWorkspaceDir = "/workspace"

	// DefaultMemoryBytes is the per-container memory limit (512 MiB).
	DefaultMemoryBytes = 512 * 1024 * 1024

	// DefaultNanoCPUs limits each container to one CPU.
	DefaultNanoCPUs = 1_000_000_000

	// poolLabel marks containers owned by a pool key so restarts can adopt
	// them instead of starting cold.
	poolLabel = "texforge.pool"
)

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Image) == "" {
		return fmt.Errorf("docker sandbox: image is required")
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("docker sandbox: pool size must not be negative")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PoolSize == 0 {
		out.PoolSize = DefaultPoolSize
	}
	if out.WorkspaceDir == "" {
		out.WorkspaceDir = DefaultWorkspaceDir
	}
	if out.MemoryBytes == 0 {
		out.MemoryBytes = DefaultMemoryBytes
	}
	if out.NanoCPUs == 0 {
		out.NanoCPUs = DefaultNanoCPUs
	}
	return out
}
