package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/ledger/*.sql
var ledgerSchemaFS embed.FS

const (
	ledgerSchemaDir = "migrations/ledger"
	// ledgerSchemaTable keeps the ledger's version apart from any other
	// migrate-managed schema sharing the database file.
	ledgerSchemaTable = "ledger_schema_migrations"
)

// MigrateLedgerSchema applies the embedded ledger schema (categories,
// transactions, balances) to the SQLite database at dsn and returns the
// schema version it ends at.
func MigrateLedgerSchema(ctx context.Context, dsn string) (uint, error) {
	// migrate's Close closes the handle it is given.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, fmt.Errorf("open ledger schema database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: ledgerSchemaTable})
	if err != nil {
		return 0, fmt.Errorf("create ledger schema driver: %w", err)
	}
	src, err := iofs.New(ledgerSchemaFS, ledgerSchemaDir)
	if err != nil {
		return 0, fmt.Errorf("load ledger schema migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create ledger schema migrator: %w", err)
	}
	defer m.Close()

	from, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read ledger schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate ledger schema from version %d: %w", from, err)
	}

	to, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read ledger schema version: %w", err)
	}
	if dirty {
		return to, fmt.Errorf("ledger schema version %d is dirty", to)
	}

	if to != from {
		slog.InfoContext(ctx, "Ledger schema migrated", "component", "storage", "from", from, "to", to)
	} else {
		slog.DebugContext(ctx, "Ledger schema up to date", "component", "storage", "version", to)
	}
	return to, nil
}
