package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/johnwards/hubsync/internal/logging"
)

// LoadFile reads a Table from a YAML file:
//
//	name: insert
//	targets:
//	  segmento: select
//	rules:
//	  - source: no__de_cedula
//	    target: no__de_cedula
//	  - source: tiene_economias
//	    target: con_ahorro_economias
//	    kind: boolean
//
// A rule's kind may be omitted when the target is in the catalog or in
// targets. The table is not validated here; New does that.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return Table{}, fmt.Errorf("read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML mapping table, rejecting unknown keys.
func Parse(data []byte) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("parse mapping file: %w", err)
	}
	if len(t.Rules) == 0 {
		return Table{}, fmt.Errorf("parse mapping file: no rules")
	}
	return t, nil
}

// InsertTableFrom picks the insert table: InsertTable when path is empty,
// the file's table when it can be read, and MinimalInsertTable when it
// cannot. A file that reads but does not parse is an error.
func InsertTableFrom(path string) (Table, error) {
	if path == "" {
		return InsertTable(), nil
	}
	t, err := LoadFile(path)
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		logging.Warn().Err(err).Str("path", path).Msg("mapping file unreadable, using minimal insert table")
		return MinimalInsertTable(), nil
	}
	return t, err
}
