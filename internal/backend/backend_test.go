package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/config"
	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, ""},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path is required"},
		{"postgres without url", Config{Type: PostgresBackend}, "Postgres URL is required"},
		{"unknown type", Config{Type: "sheets"}, "invalid backend type: sheets"},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "x"}, "AMQP exchange and queue are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) should fail")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("FromAppConfig should reject unknown backends")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "postgres",
		PostgresURL:  "postgres://localhost/billetera",
		AMQPURL:      "amqp://localhost",
		AMQPExchange: "billetera",
		AMQPQueue:    "ledger_events",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.PostgresURL == "" || cfg.AMQPQueue != "ledger_events" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := strings.Join(GetBackendTypeStrings(), ",")
	if got != "sqlite,postgres,memory" {
		t.Errorf("GetBackendTypeStrings() = %s", got)
	}
}

func TestFactory_CreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if res.Publisher != nil {
		t.Error("memory backend without AMQP should have no publisher")
	}
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func appConfig(backend string) *config.Config {
	return &config.Config{
		DataBackend:       backend,
		CategoryCacheSize: 16,
		CategoryCacheTTL:  time.Minute,
	}
}

func TestBuild_SeedsAndRecords(t *testing.T) {
	ctx := context.Background()
	cfg := appConfig("sqlite")
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "billetera.db")

	svc, err := Build(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer svc.Close()

	if err := svc.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	incomes, err := svc.Catalog.ListByType(ctx, core.Income)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if len(incomes) != 6 {
		t.Fatalf("income categories = %d, want 6", len(incomes))
	}

	_, err = svc.Ledger.Record(ctx, ledger.RecordRequest{
		UserID:     "u1",
		CategoryID: incomes[0].ID,
		Type:       core.Income,
		Amount:     decimal.RequireFromString("10.25"),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	b, err := svc.Ledger.CurrentBalance(ctx, "u1")
	if err != nil || !b.Equal(decimal.RequireFromString("10.25")) {
		t.Fatalf("CurrentBalance() = %v, %v", b, err)
	}
}

func TestBuild_SeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	content := "categories:\n  - {name: Sueldo, type: income}\n  - {name: Mercado, type: expense}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := appConfig("memory")
	cfg.CategorySeedFile = path

	svc, err := Build(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer svc.Close()

	all, err := svc.Store.ListCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("categories = %d, want 2", len(all))
	}
}

func TestBuild_BadSeedFile(t *testing.T) {
	cfg := appConfig("memory")
	cfg.CategorySeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := Build(context.Background(), cfg, log.Discard()); err == nil {
		t.Fatal("Build() should fail for a missing seed file")
	}
}
