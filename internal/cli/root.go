// Package cli defines the library-loans command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/config"
	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/logger"
)

const serviceName = "library-loans"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "library",
	Short:         "Library catalog and loan ledger service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, initdbCmd, adduserCmd, consumeCmd)
}

// Execute runs the command selected by os.Args and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime holds what every command needs after configuration is read.
type runtime struct {
	cfg config.Config
	log *zap.Logger
}

func setup() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(serviceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &runtime{cfg: cfg, log: log}, nil
}

// dsn renders the connection string for the configured driver.
func dsn(cfg config.Config) string {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return database.SQLiteDSN(cfg.DBPath)
	case config.DriverPgx:
		return cfg.DBDSN
	}
	return database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

func (r *runtime) openDB(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, r.cfg.DBDriver, dsn(r.cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", r.cfg.DBDriver, err)
	}
	return db, nil
}
