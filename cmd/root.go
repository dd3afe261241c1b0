// Package cmd holds the briefly command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"briefly-server/config"
	"briefly-server/database"
	"briefly-server/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "briefly",
		Short: "Briefly marketplace backend",
		Long: `Briefly connects clients with groups of verified lawyers.

The server exposes the REST API under /api/v1, live group chat over
/ws/group-chat and document escrow backed by on-chain payments.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), sweepCmd())
	return cmd
}

// base is what every command needs before doing work.
type base struct {
	cfg *config.Config
	log *logger.Logger
	db  *gorm.DB
}

func bootstrap(ctx context.Context) (*base, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Environment: cfg.App.Environment})

	db, err := database.Open(cfg.Database.Driver, cfg.Database.URI)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db.WithContext(ctx), cfg.Database.Driver); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("Database ready", "driver", cfg.Database.Driver)

	return &base{cfg: cfg, log: log, db: db}, nil
}

func (r *base) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	r.log.Sync()
}
