// Package memory keeps categories, transactions and balances in process
// memory. It backs tests and the "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

type entry struct {
	seq int64
	tx  core.Transaction
}

type Store struct {
	mu       sync.Mutex
	cats     []core.Category
	txs      []entry
	balances map[string]decimal.Decimal
	seq      int64
}

// New returns a store preloaded with cats. Duplicate (type, name) pairs
// keep their first occurrence.
func New(cats ...core.Category) *Store {
	return &Store{
		cats:     dedupe(nil, cats),
		balances: make(map[string]decimal.Decimal),
	}
}

// InsertCategories adds the batch, skipping pairs that already exist.
// It returns how many were inserted.
func (s *Store) InsertCategories(_ context.Context, batch []core.Category) (int, error) {
	for _, c := range batch {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.cats)
	s.cats = dedupe(s.cats, batch)
	return len(s.cats) - before, nil
}

// ListCategories returns every category in insertion order.
func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

func (s *Store) CreateTransactionAndAdjustBalance(ctx context.Context, tx core.Transaction) (core.Balance, error) {
	if err := ctx.Err(); err != nil {
		return core.Balance{}, err
	}
	if err := tx.Validate(); err != nil {
		return core.Balance{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.CategoryName == "" {
		if c, ok := s.category(tx.CategoryID); ok {
			tx.CategoryName = c.Name
		}
	}

	current := core.Balance{UserID: tx.UserID, Amount: s.balances[tx.UserID]}
	next := current.Apply(tx)
	if tx.Type == core.Expense && next.Amount.IsNegative() {
		return core.Balance{}, core.NewInsufficientBalance(current.Amount, tx.Amount)
	}
	for _, e := range s.txs {
		if e.tx.ID == tx.ID {
			return core.Balance{}, fmt.Errorf("duplicate transaction id %q", tx.ID)
		}
	}

	s.seq++
	s.txs = append(s.txs, entry{seq: s.seq, tx: tx})
	s.balances[tx.UserID] = next.Amount
	return next, nil
}

func (s *Store) DeleteTransactionAndAdjustBalance(ctx context.Context, id string) (core.Transaction, core.Balance, error) {
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.txs {
		if e.tx.ID != id {
			continue
		}
		current := core.Balance{UserID: e.tx.UserID, Amount: s.balances[e.tx.UserID]}
		next := current.Revert(e.tx)
		s.txs = append(s.txs[:i], s.txs[i+1:]...)
		s.balances[e.tx.UserID] = next.Amount
		return e.tx, next, nil
	}
	return core.Transaction{}, core.Balance{}, core.ErrTransactionNotFound
}

func (s *Store) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.txs {
		if e.tx.ID == id {
			return e.tx, nil
		}
	}
	return core.Transaction{}, core.ErrTransactionNotFound
}

// ListTransactions orders newest first; equal timestamps put the later
// insertion first.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var picked []entry
	for _, e := range s.txs {
		if e.tx.UserID == userID {
			picked = append(picked, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if !a.tx.OccurredAt.Equal(b.tx.OccurredAt) {
			return a.tx.OccurredAt.After(b.tx.OccurredAt)
		}
		return a.seq > b.seq
	})
	out := make([]core.Transaction, len(picked))
	for i, e := range picked {
		out[i] = e.tx
	}
	return out, nil
}

// ListUserIDs returns users holding a balance, sorted.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.balances))
	for id := range s.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetBalance overwrites a stored balance without touching history. It
// exists to simulate drift.
func (s *Store) SetBalance(userID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = amount
}

// Ping and Close satisfy the backend lifecycle.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) category(id string) (core.Category, bool) {
	for _, c := range s.cats {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func dedupe(existing, in []core.Category) []core.Category {
	seen := make(map[string]struct{}, len(existing)+len(in))
	key := func(c core.Category) string {
		return string(c.Type) + "\x00" + strings.TrimSpace(c.Name)
	}
	out := append([]core.Category(nil), existing...)
	for _, c := range existing {
		seen[key(c)] = struct{}{}
	}
	for _, c := range in {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		k := key(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
