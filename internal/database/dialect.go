package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite"
)

// Dialect holds the per-driver SQL differences the sync relies on.
type Dialect struct {
	Name       string
	DriverName string
	// TextType is the unbounded text column type.
	TextType string

	open, close string
	numbered    string // placeholder prefix for numbered params, "" for "?"
}

var dialects = map[string]Dialect{
	DriverSQLServer: {Name: DriverSQLServer, DriverName: "sqlserver", TextType: "NVARCHAR(MAX)", open: "[", close: "]", numbered: "@p"},
	DriverMySQL:     {Name: DriverMySQL, DriverName: "mysql", TextType: "LONGTEXT", open: "`", close: "`"},
	DriverSQLite:    {Name: DriverSQLite, DriverName: "sqlite", TextType: "TEXT", open: `"`, close: `"`},
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

// Quote quotes an identifier, doubling any embedded closing quote.
func (d Dialect) Quote(ident string) string {
	return d.open + strings.ReplaceAll(ident, d.close, d.close+d.close) + d.close
}

// Placeholder returns the bind parameter for the 1-based position n.
func (d Dialect) Placeholder(n int) string {
	if d.numbered == "" {
		return "?"
	}
	return d.numbered + strconv.Itoa(n)
}

// Placeholders returns n comma separated bind parameters.
func (d Dialect) Placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// DropTable returns a statement dropping table when it exists.
func (d Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}
