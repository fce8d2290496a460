package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/sqlite/initdb.sql scripts/postgres/initdb.sql
var bootstrapFS embed.FS

// schemaVersion is the row the bootstrap script writes into docchat_meta.
const schemaVersion = 1

// EnsureBootstrapped runs the dialect's init script unless the meta table already
// records the current schema version. The script is idempotent.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, d dialect) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	if err := db.QueryRowContext(ctxBoot, d.metaTableExistsQuery()).Scan(&exists); err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, d)
	}

	var hasVersion bool
	q := d.rebind(`SELECT EXISTS (SELECT 1 FROM docchat_meta WHERE version = ?)`)
	if err := db.QueryRowContext(ctxBoot, q, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, d)
	}
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB, d dialect) error {
	path := fmt.Sprintf("scripts/%s/initdb.sql", d)
	sqlBytes, err := bootstrapFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
