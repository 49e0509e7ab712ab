package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestMigrateLedgerSchemaIsRepeatable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := MigrateLedgerSchema(ctx, dsn(path))
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected ledger schema version 1, got %d", first)
	}

	again, err := MigrateLedgerSchema(ctx, dsn(path))
	if err != nil {
		t.Fatalf("second migration: %v", err)
	}
	if again != first {
		t.Fatalf("version changed on rerun: %d -> %d", first, again)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM "+ledgerSchemaTable).Scan(&version); err != nil {
		t.Fatalf("read %s: %v", ledgerSchemaTable, err)
	}
	if version != 1 {
		t.Fatalf("%s holds version %d", ledgerSchemaTable, version)
	}
	for _, table := range []string{"categories", "transactions", "balances"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
