/*
main.go - Application entry point

PURPOSE:
  The pointledger binary: runs the HTTP server and offers operator commands
  that work directly on the database file.

COMMANDS:
  serve               HTTP API with the backup scheduler
  export --out FILE   Write records.csv (stdout when omitted)
  import --in FILE    Replace every record from a CSV
  lock YYYY-MM        Close a month
  unlock YYYY-MM      Reopen a month
  snapshot            Write the backup file once

CONFIGURATION:
  --config points at a YAML file. Every key can be overridden with a
  POINTS_ variable, e.g. POINTS_DB_PATH or POINTS_LEDGER_KEY_POLICY.
  ADMIN_PIN and PORT are still honored. See config/config.go.

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/point-ledger/backup"
	"github.com/warp/point-ledger/config"
	"github.com/warp/point-ledger/ledger"
	"github.com/warp/point-ledger/logging"
	"github.com/warp/point-ledger/metrics"
	"github.com/warp/point-ledger/seed"
	"github.com/warp/point-ledger/store/sqlite"
)

// App holds the application dependencies.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	metrics *metrics.Collector
	ledger  *ledger.Ledger
	backup  *backup.Gateway
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pointledger",
		Short:         "Shift point ledger",
		Long:          `Records points awarded to employees per shift, locks closed months and ranks employees and teams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(lockCmd(true))
	rootCmd.AddCommand(lockCmd(false))
	rootCmd.AddCommand(snapshotCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		app.close()
		os.Exit(1)
	}
}

// initApp sets up config, logger, database and ledger.
func initApp(ctx context.Context) error {
	var err error
	app = &App{}

	app.cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.logger, err = logging.New(app.cfg.Log.Logging())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	policy := app.cfg.Ledger.Policy()
	app.logger.Debug("opening database",
		zap.String("path", app.cfg.DB.Path),
		zap.String("key_policy", string(policy)))

	app.store, err = sqlite.New(app.cfg.DB.Path, policy)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	app.metrics = metrics.New()
	app.ledger = ledger.New(app.store, policy,
		ledger.WithLogger(app.logger),
		ledger.WithRecorder(app.metrics))
	app.backup = backup.NewGateway(app.store, app.cfg.Backup.Path,
		backup.WithLogger(app.logger),
		backup.WithRecorder(app.metrics))

	s, err := seed.Load(app.cfg.Seed.File)
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}
	if err := app.ledger.Bootstrap(ctx, s); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
	return nil
}

// close flushes the logger and closes the database. Safe to call twice.
func (a *App) close() {
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
		a.store = nil
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// operator is the capability of commands run against the database file.
func operator() ledger.Capability {
	return ledger.OperatorCapability(time.Minute)
}
