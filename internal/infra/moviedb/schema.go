package moviedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column is one column of a user table.
type Column struct {
	Name string
	Type string
}

// Table is a user table with its columns in ordinal order.
type Table struct {
	Name    string
	Columns []Column
}

// Describe lists user tables and their columns.
func Describe(ctx context.Context, db *sql.DB, driver string) ([]Table, error) {
	var (
		query string
		args  []any
	)
	switch driver {
	case DriverSQLite:
		query = `SELECT m.name, p.name, p.type
			FROM sqlite_master m JOIN pragma_table_info(m.name) p
			WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
			ORDER BY m.name, p.cid`
	case DriverMySQL:
		query = `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE
			FROM information_schema.columns
			WHERE table_schema = DATABASE()
			ORDER BY TABLE_NAME, ORDINAL_POSITION`
	case DriverPostgres:
		query = `SELECT table_name, column_name, data_type
			FROM information_schema.columns
			WHERE table_schema = current_schema()
			ORDER BY table_name, ordinal_position`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("moviedb.Describe: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var tbl, col, typ string
		if err := rows.Scan(&tbl, &col, &typ); err != nil {
			return nil, fmt.Errorf("moviedb.Describe: scan: %w", err)
		}
		if n := len(tables); n == 0 || tables[n-1].Name != tbl {
			tables = append(tables, Table{Name: tbl})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: col, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("moviedb.Describe: %w", err)
	}
	return tables, nil
}

// SchemaOverview renders Describe as one line per table:
//
//	- movies: id INTEGER, title TEXT
func SchemaOverview(ctx context.Context, db *sql.DB, driver string) (string, error) {
	tables, err := Describe(ctx, db, driver)
	if err != nil {
		return "", err
	}
	return FormatOverview(tables), nil
}

// FormatOverview renders tables in the SchemaOverview layout.
func FormatOverview(tables []Table) string {
	lines := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, strings.TrimSpace(c.Name+" "+c.Type))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(lines, "\n")
}
