// Package tablesync mirrors record sets into relational tables. Every sync
// drops and recreates the destination table from the columns observed in the
// records; all columns are stored as unbounded text.
package tablesync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/database"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// Destination tables written by the mirror.
const (
	TableDeals           = "hb_deals"
	TableTickets         = "hb_tickets"
	TableContacts        = "hb_contacts"
	TableOwners          = "hb_owners"
	TableDealsPipeline   = "hb_deals_pipeline"
	TableTicketsPipeline = "hb_tickets_pipeline"
)

// DefaultTables is the set of tables a Syncer may write when none are given.
var DefaultTables = []string{
	TableDeals, TableTickets, TableContacts, TableOwners, TableDealsPipeline, TableTicketsPipeline,
}

// Result describes a finished sync.
type Result struct {
	Table    string
	Columns  Columns
	Rows     int
	Skipped  int
	Fallback bool
}

// Syncer writes record sets to a whitelist of tables.
type Syncer struct {
	db      *database.DB
	allowed map[string]bool
}

// New returns a Syncer that may write only the given tables, or
// DefaultTables when none are given.
func New(db *database.DB, tables ...string) *Syncer {
	if len(tables) == 0 {
		tables = DefaultTables
	}
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return &Syncer{db: db, allowed: allowed}
}

// keyColumns names the identity column of each mirror table. An empty sync
// recreates the table with just this column.
var keyColumns = map[string]string{
	TableDeals:           "hs_object_id",
	TableTickets:         "hs_object_id",
	TableContacts:        "hs_object_id",
	TableOwners:          "id",
	TableDealsPipeline:   "pipeline_id",
	TableTicketsPipeline: "pipeline_id",
}

// KeyColumn returns the identity column of table, "id" for tables outside
// the mirror set.
func KeyColumn(table string) string {
	if c, ok := keyColumns[table]; ok {
		return c
	}
	return "id"
}

// Sync replaces table with rows. An empty record set still replaces the
// table, leaving it empty with only its KeyColumn. When the transactional
// path fails, the table is rebuilt once more without a transaction,
// dropping invalid column names and skipping rows that fail to insert.
func (s *Syncer) Sync(ctx context.Context, rows []domain.Row, table string) (Result, error) {
	if err := s.checkTable(table); err != nil {
		return Result{}, err
	}

	cols := InferColumns(rows)
	if len(rows) == 0 {
		logging.Warn().Str("table", table).Msg("no records, table emptied")
		cols = Columns{KeyColumn(table)}
	}
	logging.Info().Str("table", table).Int("rows", len(rows)).Int("columns", len(cols)).Msg("syncing table")

	res, err := s.direct(ctx, rows, table, cols)
	if err == nil {
		logging.Info().Str("table", table).Int("rows", res.Rows).Msg("table synced")
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, err
	}

	logging.Warn().Err(err).Str("table", table).Msg("direct sync failed, retrying with manual path")
	res, err = s.manual(ctx, rows, table)
	if err != nil {
		return Result{}, fmt.Errorf("sync table %s: %w", table, err)
	}
	logging.Info().Str("table", table).Int("rows", res.Rows).Int("skipped", res.Skipped).Msg("table synced with manual path")
	return res, nil
}

func (s *Syncer) checkTable(table string) error {
	if !ValidIdentifier(table) {
		return apperr.NewValidationError("table", fmt.Sprintf("invalid table name %q", table))
	}
	if !s.allowed[table] {
		return apperr.NewValidationError("table", fmt.Sprintf("table %q is not an allowed destination", table))
	}
	return nil
}

func (s *Syncer) direct(ctx context.Context, rows []domain.Row, table string, cols Columns) (res Result, err error) {
	if bad := cols.Invalid(); len(bad) > 0 {
		return Result{}, fmt.Errorf("invalid column names: %s", strings.Join(bad, ", "))
	}
	d := s.db.Dialect

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err := recreate(ctx, tx, d, table, cols); err != nil {
		return Result{}, err
	}

	stmt, err := tx.PrepareContext(ctx, cols.Insert(d, table))
	if err != nil {
		return Result{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, cols.Values(row)...); err != nil {
			return Result{}, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	return Result{Table: table, Columns: cols, Rows: len(rows)}, nil
}

func (s *Syncer) manual(ctx context.Context, rows []domain.Row, table string) (Result, error) {
	inferred := InferColumns(rows)
	if len(rows) == 0 {
		inferred = Columns{KeyColumn(table)}
	}
	cols := inferred.Sanitized()
	if len(cols) < len(inferred) {
		logging.Warn().Str("table", table).Strs("columns", inferred.Invalid()).Msg("dropping columns with invalid names")
	}
	if len(cols) == 0 {
		return Result{}, fmt.Errorf("no valid columns")
	}
	d := s.db.Dialect

	if err := recreate(ctx, s.db, d, table, cols); err != nil {
		return Result{}, err
	}

	query := cols.Insert(d, table)
	res := Result{Table: table, Columns: cols, Fallback: true}
	for i, row := range rows {
		if _, err := s.db.ExecContext(ctx, query, cols.Values(row)...); err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			logging.Warn().Err(err).Str("table", table).Int("row", i+1).Msg("row skipped")
			res.Skipped++
			continue
		}
		res.Rows++
	}
	return res, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recreate(ctx context.Context, db execer, d database.Dialect, table string, cols Columns) error {
	if _, err := db.ExecContext(ctx, d.DropTable(table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := db.ExecContext(ctx, cols.CreateTable(d, table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}
