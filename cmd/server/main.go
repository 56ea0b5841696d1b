package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"systempulse/internal/app"
	"systempulse/internal/config"
	"systempulse/internal/db"
	"systempulse/internal/logger"
	"systempulse/internal/source"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogCaller)

	root := &cobra.Command{
		Use:   "server",
		Short: "Real-time system metrics dashboard backend",
		Long: `SystemPulse samples host metrics, persists them, evaluates alert
thresholds and pushes live updates to websocket clients.

Configuration is read from the environment (APP_*, FRONTEND_URL,
TELEGRAM_*, VALKEY_*).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, log)
		},
	}
	root.AddCommand(newMigrateCmd(cfg, log), newSnapshotCmd(cfg, log))
	return root
}

func serve(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	log.Info().
		Str("addr", cfg.Addr).
		Str("db_driver", cfg.DBDriver).
		Str("source", cfg.MetricsSource).
		Str("version", version).
		Msg("starting systempulse")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, version, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("shutdown with error: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}

func newMigrateCmd(cfg config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			sqldb, err := db.Open(db.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer sqldb.Close()
			if err := db.Migrate(sqldb, cfg.DBDriver); err != nil {
				return err
			}
			log.Info().Str("db_driver", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}
}

func newSnapshotCmd(cfg config.Config, log zerolog.Logger) *cobra.Command {
	var save bool
	var kind string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a single metrics snapshot",
		Long: `Capture one snapshot and print it as JSON.

Example:
  server snapshot --source host
  server snapshot --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.New(kind)
			if err != nil {
				return err
			}
			m := src.Current()
			if save {
				sqldb, err := db.Open(db.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN})
				if err != nil {
					return err
				}
				defer sqldb.Close()
				if err := db.Migrate(sqldb, cfg.DBDriver); err != nil {
					return err
				}
				repo, err := db.NewRepository(sqldb, cfg.DBDriver)
				if err != nil {
					return err
				}
				if err := repo.SaveSnapshot(cmd.Context(), m); err != nil {
					return err
				}
				log.Info().Time("timestamp", m.Timestamp).Msg("snapshot saved")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Persist the snapshot to the configured database")
	cmd.Flags().StringVar(&kind, "source", cfg.MetricsSource, "Metrics source (mock or host)")
	return cmd
}
