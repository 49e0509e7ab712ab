package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

// Store is the persistence collaborator of the ledger. Balance changes
// only happen through the two atomic primitives, so a transaction row and
// its balance effect are always written or discarded together.
//
//go:generate mockgen -destination=mocks/mock_ledger.go -source=interface.go
type Store interface {
	// CreateTransactionAndAdjustBalance inserts tx and applies it to the
	// user's balance in one unit of work. An expense larger than the
	// stored balance fails with *core.InsufficientBalanceError and
	// writes nothing.
	CreateTransactionAndAdjustBalance(ctx context.Context, tx core.Transaction) (core.Balance, error)

	// DeleteTransactionAndAdjustBalance removes the transaction and
	// reverts its effect in one unit of work. Unknown ids fail with
	// core.ErrTransactionNotFound.
	DeleteTransactionAndAdjustBalance(ctx context.Context, id string) (core.Transaction, core.Balance, error)

	// GetBalance returns zero for a user without history.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	GetTransaction(ctx context.Context, id string) (core.Transaction, error)

	// ListTransactions returns the user's transactions joined with their
	// category name, newest first, later insertions first on equal
	// timestamps.
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)

	ListUserIDs(ctx context.Context) ([]string, error)
}

// CategoryResolver looks up categories by id.
type CategoryResolver interface {
	Resolve(ctx context.Context, id string) (core.Category, error)
}

// EventPublisher receives committed ledger changes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}
