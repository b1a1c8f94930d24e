package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/001_partition_items.sql
var initMigration string

// Migrate creates the partition item table and its index if they do not exist.
//
// Parameters:
//   - ctx: Context for the statement
//   - db: Pool, connection or transaction
//   - table: Table name (DefaultTable when empty)
func Migrate(ctx context.Context, db DB, table string) error {
	if table == "" {
		table = DefaultTable
	}

	if _, err := db.Exec(ctx, renderMigration(table)); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", table, err)
	}

	return nil
}

func renderMigration(table string) string {
	// Index names are derived from the raw name before quoting.
	sql := strings.ReplaceAll(initMigration, "__TABLE___status_idx", pgx.Identifier{table + "_status_idx"}.Sanitize())

	return strings.ReplaceAll(sql, "__TABLE__", pgx.Identifier{table}.Sanitize())
}
