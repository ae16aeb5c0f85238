// Package moviedb opens the read-only movie database and describes its schema.
// Supported drivers: sqlite (modernc), mysql (go-sql-driver), postgres (pgx stdlib).
package moviedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	modsqlite "modernc.org/sqlite"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Options selects and sizes the movie database connection pool.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open returns a pinged *sql.DB for opts.Driver.
// SQLite connections are opened with query_only; MySQL and Postgres rely on the
// DSN naming a read-only database user.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	switch opts.Driver {
	case DriverSQLite:
		return sqlite.NewReadOnlyDB(opts.DSN, sqlite.PoolConfig{
			MaxOpenConns: opts.MaxOpenConns,
			MaxIdleConns: opts.MaxIdleConns,
		})
	case DriverMySQL:
		return openPooled(ctx, "mysql", opts)
	case DriverPostgres:
		return openPooled(ctx, "pgx", opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func openPooled(ctx context.Context, driverName string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("moviedb.Open %s: %w", opts.Driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	db.SetMaxIdleConns(opts.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("moviedb.Open %s: ping: %w", opts.Driver, err)
	}
	return db, nil
}

// EngineError extracts the engine's own error identity from a driver error.
// code is the MySQL error number or SQLite result code (0 for Postgres);
// sqlState is the five-character SQLSTATE when the engine reports one.
// ok is false for errors that did not come from a database engine.
func EngineError(err error) (code int, sqlState, message string, ok bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		state := string(myErr.SQLState[:])
		if state == "\x00\x00\x00\x00\x00" {
			state = ""
		}
		return int(myErr.Number), state, myErr.Message, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return 0, pgErr.Code, pgErr.Message, true
	}

	var liteErr *modsqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code(), "", liteErr.Error(), true
	}

	return 0, "", "", false
}
