// Package postgres is the PostgreSQL backend for the ledger and the
// category catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

type Store struct {
	db *pgxpool.Pool
}

// Connect opens a pool, retrying while the server comes up, and runs
// migrations.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		slog.WarnContext(ctx, "Postgres connection failed", "component", "storage", "attempt", attempt, "error", err)
		if attempt == maxRetries {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := RunMigrations(url); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{db: pool}, nil
}

// New wraps an existing pool; the schema is assumed to be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) InsertCategories(ctx context.Context, batch []core.Category) (int, error) {
	b := &pgx.Batch{}
	for _, c := range batch {
		b.Queue(`INSERT INTO categories (id, name, type, color, description)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (type, name) DO NOTHING`,
			c.ID, c.Name, string(c.Type), c.Color, c.Description)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, b)
	inserted := 0
	for range batch {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert category: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit categories: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, type, color, description FROM categories ORDER BY created_at, id`)
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

// CreateTransactionAndAdjustBalance locks the balance row, re-checks the
// overdraft rule, inserts the transaction and writes the new balance.
func (s *Store) CreateTransactionAndAdjustBalance(ctx context.Context, t core.Transaction) (core.Balance, error) {
	if err := t.Validate(); err != nil {
		return core.Balance{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockBalance(ctx, tx, t.UserID)
	if err != nil {
		return core.Balance{}, err
	}
	next := core.Balance{UserID: t.UserID, Amount: current}.Apply(t)
	if t.Type == core.Expense && next.Amount.IsNegative() {
		return core.Balance{}, core.NewInsufficientBalance(current, t.Amount)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, category_id, type, amount, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		t.ID, t.UserID, t.CategoryID, string(t.Type), t.Amount.String(), t.Description, t.OccurredAt,
	); err != nil {
		return core.Balance{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := setBalance(ctx, tx, next); err != nil {
		return core.Balance{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Balance{}, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (s *Store) DeleteTransactionAndAdjustBalance(ctx context.Context, id string) (core.Transaction, core.Balance, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanTransaction(tx.QueryRow(ctx, selectTransaction+` WHERE t.id = $1`, id))
	if err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	current, err := lockBalance(ctx, tx, existing.UserID)
	if err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	next := core.Balance{UserID: existing.UserID, Amount: current}.Revert(existing)

	tag, err := tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, core.Balance{}, core.ErrTransactionNotFound
	}
	if err := setBalance(ctx, tx, next); err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Transaction{}, core.Balance{}, fmt.Errorf("commit delete: %w", err)
	}
	return existing, next, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(ctx, `SELECT amount::text FROM balances WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return parseAmount(raw)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, selectTransaction+` WHERE t.id = $1`, id))
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := s.db.Query(ctx,
		selectTransaction+` WHERE t.user_id = $1 ORDER BY t.occurred_at DESC, t.seq DESC`, userID)
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

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM balances ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect users: %w", err)
	}
	return ids, nil
}

const selectTransaction = `
	SELECT t.id, t.user_id, t.category_id, COALESCE(c.name, ''), t.type, t.amount::text, t.description, t.occurred_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t      core.Transaction
		typ    string
		amount string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &typ, &amount, &t.Description, &t.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TxType(typ)
	t.OccurredAt = t.OccurredAt.UTC()
	if t.Amount, err = parseAmount(amount); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// lockBalance creates the balance row if needed and locks it for the
// rest of the transaction.
func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (decimal.Decimal, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (user_id, amount) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return decimal.Zero, fmt.Errorf("ensure balance: %w", err)
	}
	var raw string
	if err := tx.QueryRow(ctx,
		`SELECT amount::text FROM balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	return parseAmount(raw)
}

func setBalance(ctx context.Context, tx pgx.Tx, b core.Balance) error {
	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = $2::numeric, updated_at = now() WHERE user_id = $1`,
		b.UserID, b.Amount.String()); err != nil {
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
