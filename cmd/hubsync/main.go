package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/logging"
)

var (
	cfgFile  string
	dryRun   bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "hubsync",
	Short: "Synchronize association members between SQL and HubSpot",
	Long: `hubsync pushes member records from a SQL database to HubSpot contacts
(insert and update runs keyed by cedula) and mirrors HubSpot deals, tickets,
contacts, owners and pipelines back into hb_* tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HUBSYNC_CONFIG or hubsync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "map and look records up without writing to HubSpot")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			logging.Error().Err(exit.err).Int("exit_code", exit.code).Msg("run failed")
		}
		return exit.code
	}
	logging.Error().Err(err).Str("code", apperr.CodeOf(err)).Msg("fatal error")
	return 1
}
