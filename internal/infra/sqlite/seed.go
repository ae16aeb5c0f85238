package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

//go:embed seed/*.sql
var seed embed.FS

// SeedMovies creates the demo movie schema and loads its rows into db.
// Safe to run repeatedly: tables use IF NOT EXISTS and rows INSERT OR IGNORE.
// db must be writable, so open it with NewDB rather than NewReadOnlyDB.
func SeedMovies(ctx context.Context, db *sql.DB) error {
	files, err := loadSQLFiles(seed, "seed", ".sql")
	if err != nil {
		return fmt.Errorf("seed: load files: %w", err)
	}
	for _, f := range files {
		if err := execInTx(ctx, db, f.sql, ""); err != nil {
			return fmt.Errorf("seed: apply %s: %w", f.name, err)
		}
	}
	return nil
}
