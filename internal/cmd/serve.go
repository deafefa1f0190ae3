package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/config"
	"github.com/texforge/texforge/internal/observability"
	"github.com/texforge/texforge/internal/server"
	"github.com/texforge/texforge/internal/server/handlers"
	"github.com/texforge/texforge/internal/version"
	"github.com/texforge/texforge/pkg/pipeline"
	"github.com/texforge/texforge/pkg/sandbox"
	sandboxdocker "github.com/texforge/texforge/pkg/sandbox/docker"
	sandboxlocal "github.com/texforge/texforge/pkg/sandbox/local"
	signers3 "github.com/texforge/texforge/pkg/signer/s3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compile service",
	Long: `Start the HTTP service.

Example:
  texforge serve
  texforge serve --config /etc/texforge/texforge.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newSandboxPool(cfg, logger)
	if err != nil {
		return fmt.Errorf("sandbox pool: %w", err)
	}
	defer func() { _ = pool.Close() }()

	sig, err := signers3.New(ctx, signers3.Config{
		Bucket:          cfg.Storage.Bucket,
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("storage signer: %w", err)
	}

	pipe := pipeline.New(pool, sig, pipeline.Config{
		PoolKey:      cfg.Pipeline.PoolKey,
		WorkspaceDir: cfg.Sandbox.WorkspaceDir,
		KeyPrefix:    cfg.Pipeline.KeyPrefix,
		SignExpiry:   cfg.Pipeline.SignExpiry,
	}, logger)

	health := handlers.NewHealthManager(version.Version)
	health.RegisterChecker("storage", sig)
	if checker, ok := pool.(handlers.Checker); ok {
		health.RegisterChecker("sandbox", checker)
	}

	compile := handlers.NewCompileHandler(cfg.Auth.APIKey, cfg.Server.MaxBodyBytes, pipe, logger)

	srv := server.New(server.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RateLimitRPS:   rateLimitRPS(cfg),
		RateLimitBurst: cfg.RateLimit.Burst,
	}, compile, health, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("server started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("sandbox_backend", cfg.Sandbox.Backend),
		zap.String("bucket", cfg.Storage.Bucket))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newSandboxPool(cfg *config.Config, logger *zap.Logger) (sandbox.Pool, error) {
	switch cfg.Sandbox.Backend {
	case "local":
		return sandboxlocal.New(sandboxlocal.Config{WorkspaceDir: cfg.Sandbox.WorkspaceDir})
	default:
		return sandboxdocker.New(sandboxdocker.Config{
			Image:        cfg.Sandbox.Image,
			PoolSize:     cfg.Sandbox.PoolSize,
			WorkspaceDir: cfg.Sandbox.WorkspaceDir,
			MemoryBytes:  int64(cfg.Sandbox.MemoryMB) * 1024 * 1024,
		}, logger)
	}
}

func rateLimitRPS(cfg *config.Config) float64 {
	if !cfg.RateLimit.Enabled {
		return 0
	}
	return cfg.RateLimit.RPS
}
