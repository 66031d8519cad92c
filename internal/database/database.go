package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Options describes the relational database hubsync reads candidates from and
// mirrors CRM tables into.
type Options struct {
	Driver   string // sqlserver, mysql or sqlite
	Server   string
	Port     int
	Name     string // database name, or file path for sqlite
	User     string
	Password string
}

// DB is an open database handle together with its SQL dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database described by opts and verifies the
// connection. The pool is limited to a single connection: a run has one
// thread of control.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if dialect.Name == DriverSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		}
		for _, p := range pragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("exec %q: %w", p, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// DSN builds the driver-specific connection string for opts.
func DSN(opts Options) (string, error) {
	switch opts.Driver {
	case DriverSQLServer:
		q := url.Values{}
		q.Set("database", opts.Name)
		q.Set("app name", "hubsync")
		u := url.URL{
			Scheme:   "sqlserver",
			Host:     hostPort(opts.Server, opts.Port),
			RawQuery: q.Encode(),
		}
		if opts.User != "" {
			u.User = url.UserPassword(opts.User, opts.Password)
		}
		return u.String(), nil
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = opts.User
		cfg.Passwd = opts.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort(opts.Server, opts.Port)
		cfg.DBName = opts.Name
		cfg.ParseTime = true
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN(), nil
	case DriverSQLite:
		return opts.Name, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func hostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
