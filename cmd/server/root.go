package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kahaf/internal/app"
	"kahaf/internal/config"
	"kahaf/internal/logging"
	"kahaf/internal/repositories"
)

const serviceName = "kahaf"

var configFile string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kahaf",
		Short:         "kahaf - credential and verification-code service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	return cmd
}

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate needs the postgres driver, got %q", cfg.Database.Driver)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := app.OpenDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repositories.RunMigrations(ctx, db); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(serviceName, cfg.Log.Format, cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
