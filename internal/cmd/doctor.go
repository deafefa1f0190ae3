package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/config"
	sandboxdocker "github.com/texforge/texforge/pkg/sandbox/docker"
	signers3 "github.com/texforge/texforge/pkg/signer/s3"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check that the configuration, Docker daemon, and storage credentials
are ready to serve compile requests.

Example:
  texforge doctor
  texforge doctor --config /etc/texforge/texforge.yaml`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	failed := 0
	check := func(name string, fn func() error) {
		if err := fn(); err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", name, err)
			failed++
			return
		}
		fmt.Fprintf(out, "✓ %s\n", name)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	check("configuration", cfg.Validate)

	if cfg.Sandbox.Backend == "docker" {
		check("docker daemon", func() error {
			pool, err := sandboxdocker.New(sandboxdocker.Config{Image: cfg.Sandbox.Image}, zap.NewNop())
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()
			return pool.CheckHealth(ctx)
		})
	}

	check("storage credentials", func() error {
		sig, err := signers3.New(ctx, signers3.Config{
			Bucket:          cfg.Storage.Bucket,
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		return sig.CheckHealth(ctx)
	})

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}
