// Package main is crmctl, the operator CLI: schema migrations, account
// bootstrap and permission inspection.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crmflow/internal/app"
	"crmflow/internal/config"
	"crmflow/pkg/logger"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "crmctl",
		Short:         "Operate a crmflow database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("CONFIG_PATH", "config.yaml"), "path to the YAML config")

	rootCmd.AddCommand(migrateCmd, createUserCmd, seedCmd, permissionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads the config and wires the application without applying
// migrations implicitly.
func openApp(ctx context.Context) (*app.App, context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, ctx, fmt.Errorf("load config: %w", err)
	}
	cfg.Database.MigrateOnStart = false
	cfg.Metrics.Enabled = false

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, ctx, fmt.Errorf("init logger: %w", err)
	}
	ctx = logger.WithLogger(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, ctx, err
	}
	return a, ctx, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
