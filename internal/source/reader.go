package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Reader runs candidate queries.
type Reader struct {
	db Querier
}

// NewReader returns a Reader over db.
func NewReader(db Querier) *Reader {
	return &Reader{db: db}
}

// Records runs q and returns one SourceRecord per row, in the order the
// database returns them.
func (r *Reader) Records(ctx context.Context, q Query, args ...any) ([]domain.SourceRecord, error) {
	logging.Info().Str("query", q.Name).Msg("reading source records")

	rows, err := r.db.QueryContext(ctx, q.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", q.Name, err)
	}
	defer func() { _ = rows.Close() }()

	records, err := ScanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read query %s: %w", q.Name, err)
	}

	logging.Info().Str("query", q.Name).Int("records", len(records)).Msg("source records read")
	return records, nil
}

// Ping runs SELECT 1.
func (r *Reader) Ping(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database check: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("database check: %w", err)
		}
		return fmt.Errorf("database check: no row returned")
	}
	return nil
}

// ScanRecords converts every remaining row to a SourceRecord keyed by column
// name. []byte values become strings and NULL becomes nil.
func ScanRecords(rows *sql.Rows) ([]domain.SourceRecord, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []domain.SourceRecord
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := make(domain.SourceRecord, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
