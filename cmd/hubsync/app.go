package main

import (
	"context"
	"fmt"

	"github.com/johnwards/hubsync/internal/config"
	"github.com/johnwards/hubsync/internal/database"
	"github.com/johnwards/hubsync/internal/discovery"
	"github.com/johnwards/hubsync/internal/hubspot"
	"github.com/johnwards/hubsync/internal/logging"
	"github.com/johnwards/hubsync/internal/metrics"
)

// app holds what every command shares for one process run.
type app struct {
	cfg      *config.Config
	client   *hubspot.Client
	db       *database.DB
	metrics  *metrics.Recorder
	closeLog func() error
}

// setup loads configuration, applies the persistent flags and configures
// logging and the HubSpot client. The database is opened only when withDB is
// set. Configuration problems are returned before anything connects.
func setup(ctx context.Context, withDB bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.Sync.DryRun = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	a := &app{
		cfg:      cfg,
		metrics:  metrics.New(),
		closeLog: logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Dir: cfg.Log.Dir}),
	}
	a.client = hubspot.New(hubspot.Options{
		BaseURL:           cfg.HubSpot.BaseURL,
		Token:             cfg.HubSpot.Token,
		Timeout:           cfg.HubSpot.Timeout,
		RequestsPerSecond: hubspot.DefaultRequestsPerSecond,
		OnRequest:         a.metrics.APIRequest,
	})

	if withDB {
		if err := a.openDB(ctx); err != nil {
			_ = a.closeLog()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openDB(ctx context.Context) error {
	opts := dbOptions(a.cfg.Database)
	dsn, _ := database.DSN(opts)
	logging.Info().Str("driver", opts.Driver).Str("dsn", logging.MaskDSN(dsn)).Msg("opening database")
	db, err := database.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return nil
}

func dbOptions(c config.DatabaseConfig) database.Options {
	return database.Options{
		Driver:   c.Driver,
		Server:   c.Server,
		Port:     c.Port,
		Name:     c.Name,
		User:     c.User,
		Password: c.Password,
	}
}

func (a *app) discoverer() *discovery.Discoverer {
	return discovery.New(a.client, a.cfg.Sync.DiscoveryPause, a.cfg.Sync.DiscoveryThreshold)
}

// close writes the metrics file and releases the database and log file.
func (a *app) close() {
	if err := a.metrics.WriteFile(a.cfg.Metrics.File); err != nil {
		logging.Warn().Err(err).Str("path", a.cfg.Metrics.File).Msg("metrics not written")
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.closeLog()
}
