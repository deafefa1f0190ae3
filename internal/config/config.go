// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the texforge service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps the accepted request body size.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// AuthConfig holds the shared API credential.
type AuthConfig struct {
	// APIKey is compared for exact equality against the caller-supplied
	// credential. Required.
	APIKey string `mapstructure:"api_key"`
}

// StorageConfig configures the object-store signer.
type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// SandboxConfig configures the execution-environment provider.
type SandboxConfig struct {
	// Backend selects the provider: "docker" or "local".
	Backend string `mapstructure:"backend"`

	// Image is the worker image for the docker backend.
	Image string `mapstructure:"image"`

	// PoolSize is how many warm containers back each pool key.
	PoolSize int `mapstructure:"pool_size"`

	// WorkspaceDir is the directory holding job files. For the local
	// backend this is a host path; for docker it is in-container.
	WorkspaceDir string `mapstructure:"workspace_dir"`

	// MemoryMB limits each docker container's memory.
	MemoryMB int `mapstructure:"memory_mb"`
}

// PipelineConfig tunes the compile-and-publish pipeline.
type PipelineConfig struct {
	PoolKey    string        `mapstructure:"pool_key"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	SignExpiry time.Duration `mapstructure:"sign_expiry"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// Validate checks that the configuration can drive a running service.
func (c *Config) Validate() error {
	if c.Auth.APIKey == "" {
		return fmt.Errorf("config: auth.api_key is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("config: storage.bucket is required")
	}
	if (c.Storage.AccessKeyID != "") != (c.Storage.SecretAccessKey != "") {
		return fmt.Errorf("config: storage access key id and secret must be provided together")
	}
	switch c.Sandbox.Backend {
	case "docker", "local":
	default:
		return fmt.Errorf("config: sandbox.backend must be docker or local, got %q", c.Sandbox.Backend)
	}
	if c.Sandbox.Backend == "local" && c.Sandbox.WorkspaceDir == "" {
		return fmt.Errorf("config: sandbox.workspace_dir is required for the local backend")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}
