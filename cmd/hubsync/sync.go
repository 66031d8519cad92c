package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/identity"
	"github.com/johnwards/hubsync/internal/logging"
	"github.com/johnwards/hubsync/internal/mapping"
	"github.com/johnwards/hubsync/internal/report"
	"github.com/johnwards/hubsync/internal/source"
	"github.com/johnwards/hubsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the insert phase, then the update phase",
	Long: `Run the insert phase, then the update phase.

Exit status is 0 when both phases complete, 1 when one of them fails and 2
when both fail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		insertErr := runInsert(cmd.Context(), a)
		updateErr := runUpdate(cmd.Context(), a)
		return phaseExit(insertErr, updateErr)
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Create contacts that do not exist in HubSpot yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()
		return runInsert(cmd.Context(), a)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update contacts that already exist in HubSpot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()
		return runUpdate(cmd.Context(), a)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, insertCmd, updateCmd)
}

// phaseExit maps the two phase results of a full sync to an exit code.
func phaseExit(insertErr, updateErr error) error {
	switch {
	case insertErr == nil && updateErr == nil:
		return nil
	case insertErr != nil && updateErr != nil:
		return &exitError{code: 2, err: errors.Join(insertErr, updateErr)}
	default:
		return &exitError{code: 1, err: errors.Join(insertErr, updateErr)}
	}
}

func runInsert(ctx context.Context, a *app) error {
	q, err := source.LoadQuery(a.cfg.Sync.InsertQueryFile)
	if err != nil {
		return err
	}
	table, err := mapping.InsertTableFrom(a.cfg.Sync.MappingFile)
	if err != nil {
		return err
	}
	m, err := mapping.New(table)
	if err != nil {
		return err
	}
	warnMissingTargets(ctx, a, m.Table())

	records, err := readRecords(ctx, a, q)
	if err != nil {
		return err
	}

	var rep *report.Writer
	if !a.cfg.Sync.DryRun {
		rep, err = report.Open(a.cfg.Sync.ReportDir, time.Now())
		if err != nil {
			return err
		}
		defer func() {
			if err := rep.Close(); err != nil {
				logging.Warn().Err(err).Msg("closing reports")
			}
		}()
	}

	_, err = a.orchestrator(rep).Insert(ctx, m, records)
	return err
}

func runUpdate(ctx context.Context, a *app) error {
	q, err := source.LoadQuery(a.cfg.Sync.UpdateQueryFile)
	if err != nil {
		return err
	}
	m, err := mapping.New(mapping.UpdateTable())
	if err != nil {
		return err
	}
	warnMissingTargets(ctx, a, m.Table())

	records, err := readRecords(ctx, a, q)
	if err != nil {
		return err
	}
	_, err = a.orchestrator(nil).Update(ctx, m, records)
	return err
}

func (a *app) orchestrator(rep *report.Writer) *syncer.Orchestrator {
	return syncer.New(a.client, identity.New(a.client), syncer.Options{
		BatchSize:       a.cfg.Sync.BatchSize,
		UpdateBatchSize: a.cfg.Sync.UpdateBatchSize,
		WriteDelay:      a.cfg.Sync.WriteDelay,
		BatchPause:      a.cfg.Sync.BatchPause,
		DryRun:          a.cfg.Sync.DryRun,
		Report:          rep,
		Metrics:         a.metrics,
	})
}

func readRecords(ctx context.Context, a *app, q source.Query) ([]domain.SourceRecord, error) {
	qctx, cancel := context.WithTimeout(ctx, a.cfg.Sync.Timeout)
	defer cancel()
	return source.NewReader(a.db).Records(qctx, q)
}

// warnMissingTargets logs mapped properties the portal does not define. The
// CRM rejects writes to them, so every affected record would fail.
func warnMissingTargets(ctx context.Context, a *app, t mapping.Table) {
	descs, err := a.client.ListProperties(ctx, domain.ObjectContacts)
	if err != nil {
		logging.Warn().Err(err).Msg("contact properties unavailable, mapping targets not checked")
		return
	}
	if missing := t.Missing(descs); len(missing) > 0 {
		logging.Warn().Str("table", t.Name).Strs("properties", missing).Msg("mapped properties not defined in HubSpot")
	}
}
