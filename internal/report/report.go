// Package report writes the per-run CSV files used for manual
// reconciliation: create conflicts and successful creates.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimestampLayout names report files and fills their timestamp column.
const TimestampLayout = "20060102_150405"

var (
	conflictHeader = []string{"cedula", "email", "firstname", "lastname", "numero_asociado", "existing_hubspot_id", "error_message", "timestamp"}
	successHeader  = []string{"cedula", "hubspot_id", "email", "timestamp"}
)

// Conflict is a create rejected because a unique value belongs to another
// record.
type Conflict struct {
	Cedula         string
	Email          string
	FirstName      string
	LastName       string
	NumeroAsociado string
	ExistingID     string
	Message        string
	At             time.Time
}

// Success is a created record.
type Success struct {
	Cedula    string
	HubSpotID string
	Email     string
	At        time.Time
}

type csvFile struct {
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

func create(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path) //nolint:gosec // path is built from the configured report dir
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &csvFile{path: path, f: f, w: w}, nil
}

// write appends a row and flushes it, so an interrupted run keeps every
// row written so far.
func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

// Writer streams both reports of one insert run. A nil *Writer discards
// everything, which is what dry runs use.
type Writer struct {
	conflicts *csvFile
	successes *csvFile
}

// Open creates insert_conflicts_<ts>.csv and insert_success_<ts>.csv in dir.
func Open(dir string, at time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	ts := at.Format(TimestampLayout)

	conflicts, err := create(filepath.Join(dir, "insert_conflicts_"+ts+".csv"), conflictHeader)
	if err != nil {
		return nil, fmt.Errorf("create conflict report: %w", err)
	}
	successes, err := create(filepath.Join(dir, "insert_success_"+ts+".csv"), successHeader)
	if err != nil {
		_ = conflicts.close()
		return nil, fmt.Errorf("create success report: %w", err)
	}
	return &Writer{conflicts: conflicts, successes: successes}, nil
}

// Conflict appends a conflict row.
func (w *Writer) Conflict(c Conflict) error {
	if w == nil {
		return nil
	}
	existing := c.ExistingID
	if existing == "" {
		existing = "Unknown"
	}
	return w.conflicts.write([]string{
		c.Cedula, c.Email, c.FirstName, c.LastName, c.NumeroAsociado,
		existing, c.Message, c.At.Format(TimestampLayout),
	})
}

// Success appends a success row.
func (w *Writer) Success(s Success) error {
	if w == nil {
		return nil
	}
	return w.successes.write([]string{s.Cedula, s.HubSpotID, s.Email, s.At.Format(TimestampLayout)})
}

// Paths returns the conflict and success file paths.
func (w *Writer) Paths() (conflicts, successes string) {
	if w == nil {
		return "", ""
	}
	return w.conflicts.path, w.successes.path
}

// Counts returns the number of rows written to each report.
func (w *Writer) Counts() (conflicts, successes int) {
	if w == nil {
		return 0, 0
	}
	return w.conflicts.rows, w.successes.rows
}

// Close flushes and closes both files.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	return errors.Join(w.conflicts.close(), w.successes.close())
}
