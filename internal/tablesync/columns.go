package tablesync

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/johnwards/hubsync/internal/database"
	"github.com/johnwards/hubsync/internal/domain"
)

// MaxIdentifierLength is the longest table or column name accepted.
const MaxIdentifierLength = 128

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column
// name.
func ValidIdentifier(name string) bool {
	return len(name) <= MaxIdentifierLength && identifierPattern.MatchString(name)
}

// Columns is the inferred schema of a destination table: the union of the
// keys of every row, in first-seen order. Keys new to a row are taken in
// sorted order so the result does not depend on map iteration. Names are
// compared case-insensitively, as SQL Server and SQLite compare them; the
// first spelling seen names the column.
type Columns []string

// InferColumns builds the column list of rows.
func InferColumns(rows []domain.Row) Columns {
	seen := map[string]bool{}
	var cols Columns
	for _, row := range rows {
		var fresh []string
		for k := range row {
			if !seen[fold(k)] {
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		for _, k := range fresh {
			if seen[fold(k)] {
				continue
			}
			seen[fold(k)] = true
			cols = append(cols, k)
		}
	}
	return cols
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Invalid returns the column names that are not valid identifiers.
func (c Columns) Invalid() []string {
	var out []string
	for _, name := range c {
		if !ValidIdentifier(name) {
			out = append(out, name)
		}
	}
	return out
}

// Sanitized returns c without invalid identifiers.
func (c Columns) Sanitized() Columns {
	out := make(Columns, 0, len(c))
	for _, name := range c {
		if ValidIdentifier(name) {
			out = append(out, name)
		}
	}
	return out
}

// CreateTable returns the CREATE TABLE statement with every column as
// unbounded text.
func (c Columns) CreateTable(d database.Dialect, table string) string {
	defs := make([]string, len(c))
	for i, name := range c {
		defs[i] = d.Quote(name) + " " + d.TextType
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

// Insert returns the parameterized INSERT statement for one row.
func (c Columns) Insert(d database.Dialect, table string) string {
	quoted := make([]string, len(c))
	for i, name := range c {
		quoted[i] = d.Quote(name)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), strings.Join(quoted, ", "), d.Placeholders(len(c)))
}

// Values returns row's values in column order, rendered as text. Missing
// and nil values are NULL. A key matches its column case-insensitively; an
// exact match wins over a differently cased one.
func (c Columns) Values(row domain.Row) []any {
	out := make([]any, len(c))
	index := make(map[string]int, len(c))
	for i, name := range c {
		index[fold(name)] = i
		out[i] = text(row[name])
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		i, ok := index[fold(k)]
		if !ok || c[i] == k || out[i] != nil {
			continue
		}
		out[i] = text(row[k])
	}
	return out
}

func text(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
