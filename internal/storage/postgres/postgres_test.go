package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u@db/ledger?sslmode=x": "pgx5://u@db/ledger?sslmode=x",
		"pgx5://already":                     "pgx5://already",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestStoreIntegration runs against a live server when POSTGRES_TEST_URL
// is set.
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	suffix := time.Now().Format("150405.000000")
	user := "it-" + suffix
	catID := "cat-" + suffix
	if _, err := s.InsertCategories(ctx, []core.Category{{ID: catID, Name: "Test " + suffix, Type: core.Expense}}); err != nil {
		t.Fatalf("insert categories: %v", err)
	}

	_, err = s.CreateTransactionAndAdjustBalance(ctx, core.Transaction{
		ID: "tx-" + suffix, UserID: user, CategoryID: catID, Type: core.Expense,
		Amount: decimal.NewFromInt(1), OccurredAt: time.Now(),
	})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	b, err := s.GetBalance(ctx, user)
	if err != nil || !b.IsZero() {
		t.Fatalf("balance = %s err=%v", b, err)
	}
}
