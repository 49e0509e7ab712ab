// Package storage is the SQLite backend for the ledger and the category
// catalog.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway and a single
	// connection keeps read-check-write transactions from interleaving.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := MigrateLedgerSchema(context.Background(), dsn(dbPath)); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertCategories inserts the batch in one transaction; rows whose
// (type, name) exists are skipped.
func (r *SQLiteRepository) InsertCategories(ctx context.Context, batch []core.Category) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO categories (id, name, type, color, description)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (type, name) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert category: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range batch {
		res, err := stmt.ExecContext(ctx, c.ID, c.Name, string(c.Type), c.Color, c.Description)
		if err != nil {
			return 0, fmt.Errorf("insert category %q: %w", c.Name, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit categories: %w", err)
	}
	slog.InfoContext(ctx, "Categories inserted", "component", "storage", "inserted", inserted, "batch", len(batch))
	return inserted, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, color, description FROM categories ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.Color, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TxType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateTransactionAndAdjustBalance re-checks the overdraft rule inside
// the database transaction, inserts the row and writes the new balance.
func (r *SQLiteRepository) CreateTransactionAndAdjustBalance(ctx context.Context, t core.Transaction) (core.Balance, error) {
	if err := t.Validate(); err != nil {
		return core.Balance{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := balanceTx(ctx, tx, t.UserID)
	if err != nil {
		return core.Balance{}, err
	}
	next := core.Balance{UserID: t.UserID, Amount: current}.Apply(t)
	if t.Type == core.Expense && next.Amount.IsNegative() {
		return core.Balance{}, core.NewInsufficientBalance(current, t.Amount)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, category_id, type, amount, description, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.CategoryID, string(t.Type), t.Amount.String(), t.Description, t.OccurredAt.UnixNano(),
	); err != nil {
		return core.Balance{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := setBalanceTx(ctx, tx, next); err != nil {
		return core.Balance{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Balance{}, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (r *SQLiteRepository) DeleteTransactionAndAdjustBalance(ctx context.Context, id string) (core.Transaction, core.Balance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanTransaction(tx.QueryRowContext(ctx, selectTransaction+` WHERE t.id = ?`, id))
	if err != nil {
		return core.Transaction{}, core.Balance{}, err
	}

	current, err := balanceTx(ctx, tx, existing.UserID)
	if err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	next := core.Balance{UserID: existing.UserID, Amount: current}.Revert(existing)

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("delete transaction: %w", err)
	}
	if err := setBalanceTx(ctx, tx, next); err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("commit delete: %w", err)
	}
	return existing, next, nil
}

func (r *SQLiteRepository) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return parseAmount(raw)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(r.db.QueryRowContext(ctx, selectTransaction+` WHERE t.id = ?`, id))
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransaction+` WHERE t.user_id = ? ORDER BY t.occurred_at DESC, t.seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM balances ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const selectTransaction = `
	SELECT t.id, t.user_id, t.category_id, COALESCE(c.name, ''), t.type, t.amount, t.description, t.occurred_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		typ    string
		amount string
		nanos  int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &typ, &amount, &t.Description, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TxType(typ)
	t.OccurredAt = time.Unix(0, nanos).UTC()
	if t.Amount, err = parseAmount(amount); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func balanceTx(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return parseAmount(raw)
}

func setBalanceTx(ctx context.Context, tx *sql.Tx, b core.Balance) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balances (user_id, amount, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		b.UserID, b.Amount.String())
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored amount %q: %w", raw, err)
	}
	return d, nil
}
