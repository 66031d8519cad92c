// Package source reads candidate records from the relational database using
// read-only query files.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Query is a read-only SQL statement loaded from a file.
type Query struct {
	Name string
	SQL  string
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	stringLit    = regexp.MustCompile(`'(?:[^']|'')*'`)
	leadingWord  = regexp.MustCompile(`^\s*\(*\s*([A-Za-z]+)`)
	forbidden    = regexp.MustCompile(`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|EXEC|EXECUTE|INSERT|UPDATE|MERGE|GRANT|REVOKE|CREATE)\b`)
)

// LoadQuery reads and checks a query file.
func LoadQuery(path string) (Query, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return Query{}, fmt.Errorf("read query file: %w", err)
	}
	q := Query{Name: filepath.Base(path), SQL: string(data)}
	if err := CheckSQL(q.SQL); err != nil {
		return Query{}, fmt.Errorf("query file %s: %w", q.Name, err)
	}
	return q, nil
}

// CheckSQL accepts a single SELECT (or WITH ... SELECT) statement. Comments
// and string literals are ignored when looking for write statements.
func CheckSQL(sql string) error {
	stripped := blockComment.ReplaceAllString(sql, " ")
	stripped = lineComment.ReplaceAllString(stripped, " ")
	stripped = stringLit.ReplaceAllString(stripped, "''")
	if strings.TrimSpace(stripped) == "" {
		return fmt.Errorf("query is empty")
	}

	m := leadingWord.FindStringSubmatch(stripped)
	if m == nil {
		return fmt.Errorf("query must start with SELECT or WITH")
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH":
	default:
		return fmt.Errorf("query must start with SELECT or WITH, found %s", strings.ToUpper(m[1]))
	}

	if w := forbidden.FindString(stripped); w != "" {
		return fmt.Errorf("query contains forbidden statement %s", strings.ToUpper(w))
	}
	return nil
}
