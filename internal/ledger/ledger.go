// Package ledger records income and expense transactions for a user and
// keeps the user's balance equal to the signed sum of that history.
package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"billetera/internal/core"
	"billetera/internal/log"
)

// RecordRequest carries the user input for a new transaction.
type RecordRequest struct {
	UserID      string
	CategoryID  string
	Type        core.TxType
	Amount      decimal.Decimal
	Description string
}

type Ledger struct {
	store      Store
	categories CategoryResolver
	publisher  EventPublisher
	locks      *userLocks
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Ledger)

// WithPublisher sends committed changes to p. Publish failures are
// logged and never fail the write.
func WithPublisher(p EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger.WithComponent(log.ComponentLedger) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func New(store Store, categories CategoryResolver, opts ...Option) *Ledger {
	var (
		entropyMu sync.Mutex
		entropy   = ulid.Monotonic(rand.Reader, 0)
	)
	l := &Ledger{
		store:      store,
		categories: categories,
		locks:      newUserLocks(),
		logger:     log.Default().WithComponent(log.ComponentLedger),
		now:        time.Now,
	}
	l.newID = func() string {
		entropyMu.Lock()
		defer entropyMu.Unlock()
		return ulid.MustNew(ulid.Timestamp(l.now()), entropy).String()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record validates req, rejects expenses that would overdraw the balance
// and atomically persists the transaction together with its balance
// effect. An *core.InsufficientBalanceError carries the deficit.
//
// ctx may cancel the call while it waits for the user's lock or before
// the store commits; a committed transaction is returned even if ctx is
// cancelled afterwards.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (core.Transaction, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := validate(req); err != nil {
		return core.Transaction{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}

	cat, err := l.categories.Resolve(ctx, req.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("resolve category: %w", err)
	}
	if cat.Type != req.Type {
		return core.Transaction{}, fmt.Errorf("category %q is %s: %w", cat.Name, cat.Type, core.ErrTypeMismatch)
	}

	release, err := l.locks.acquire(ctx, req.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("wait for user lock: %w", err)
	}
	defer release()

	current, err := l.store.GetBalance(ctx, req.UserID)
	if err != nil {
		return core.Transaction{}, core.NewPersistenceError("get balance", err)
	}

	tx := core.Transaction{
		UserID:       req.UserID,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Type:         req.Type,
		Amount:       req.Amount,
		Description:  req.Description,
	}

	tentative := core.Balance{UserID: req.UserID, Amount: current}.Apply(tx)
	if req.Type == core.Expense && tentative.Amount.IsNegative() {
		ibe := core.NewInsufficientBalance(current, req.Amount)
		l.logger.WarnContext(ctx, "Expense rejected: insufficient balance",
			log.FieldUserID, req.UserID,
			log.FieldAmount, req.Amount.String(),
			log.FieldBalance, current.String(),
			log.FieldDeficit, ibe.Deficit().String())
		return core.Transaction{}, ibe
	}

	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}

	tx.ID = l.newID()
	tx.OccurredAt = l.now().UTC()

	balance, err := l.store.CreateTransactionAndAdjustBalance(ctx, tx)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInsufficientBalance), errors.Is(err, core.ErrInvalidInput):
			return core.Transaction{}, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return core.Transaction{}, err
		}
		l.logger.ErrorContext(ctx, "Failed to record transaction",
			log.NewFields().
				WithTransaction(tx.ID, tx.UserID, tx.CategoryID, tx.Type.String(), tx.Amount.String()).
				WithOperation(log.OpRecord).
				WithError(err).
				ToSlice()...)
		return core.Transaction{}, core.NewPersistenceError("create transaction and adjust balance", err)
	}

	l.logger.InfoContext(ctx, "Transaction recorded",
		log.NewFields().
			WithTransaction(tx.ID, tx.UserID, tx.CategoryID, tx.Type.String(), tx.Amount.String()).
			With(log.FieldBalance, balance.Amount.String()).
			ToSlice()...)

	l.publish(ctx, core.LedgerEvent{
		Kind:        core.EventTransactionRecorded,
		Transaction: tx,
		Balance:     balance.Amount,
		At:          tx.OccurredAt,
	})
	return tx, nil
}

// Delete removes a transaction and reverses its effect on the balance.
func (l *Ledger) Delete(ctx context.Context, transactionID string) (core.Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return core.Transaction{}, fmt.Errorf("%w: transaction id is required", core.ErrInvalidInput)
	}

	existing, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, core.NewPersistenceError("get transaction", err)
	}

	release, err := l.locks.acquire(ctx, existing.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("wait for user lock: %w", err)
	}
	defer release()

	removed, balance, err := l.store.DeleteTransactionAndAdjustBalance(ctx, transactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.Transaction{}, err
		}
		l.logger.ErrorContext(ctx, "Failed to delete transaction",
			log.FieldTransactionID, transactionID,
			log.FieldUserID, existing.UserID,
			log.FieldError, err)
		return core.Transaction{}, core.NewPersistenceError("delete transaction and adjust balance", err)
	}

	l.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldTransactionID, removed.ID,
		log.FieldUserID, removed.UserID,
		log.FieldBalance, balance.Amount.String())

	l.publish(ctx, core.LedgerEvent{
		Kind:        core.EventTransactionDeleted,
		Transaction: removed,
		Balance:     balance.Amount,
		At:          l.now().UTC(),
	})
	return removed, nil
}

// CurrentBalance returns the latest committed balance. It reads the
// maintained value and never sums history.
func (l *Ledger) CurrentBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if strings.TrimSpace(userID) == "" {
		return decimal.Zero, core.ErrEmptyUser
	}
	b, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, core.NewPersistenceError("get balance", err)
	}
	return b, nil
}

// Transaction returns a single transaction by id.
func (l *Ledger) Transaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return core.Transaction{}, fmt.Errorf("%w: transaction id is required", core.ErrInvalidInput)
	}
	tx, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, core.NewPersistenceError("get transaction", err)
	}
	return tx, nil
}

// ListTransactions returns the user's transactions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUser
	}
	txs, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, core.NewPersistenceError("list transactions", err)
	}
	return txs, nil
}

// Reconcile compares the stored balance with the signed sum of the
// user's history. A mismatch is logged at error level and returned as
// *core.DriftError; nothing is corrected.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (core.Reconciliation, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Reconciliation{}, core.ErrEmptyUser
	}

	release, err := l.locks.acquire(ctx, userID)
	if err != nil {
		return core.Reconciliation{}, fmt.Errorf("wait for user lock: %w", err)
	}
	defer release()

	txs, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return core.Reconciliation{}, core.NewPersistenceError("list transactions", err)
	}
	stored, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return core.Reconciliation{}, core.NewPersistenceError("get balance", err)
	}

	computed := decimal.Zero
	for _, tx := range txs {
		computed = computed.Add(tx.SignedAmount())
	}

	rec := core.Reconciliation{
		UserID:       userID,
		Stored:       stored,
		Computed:     computed,
		Transactions: len(txs),
		CheckedAt:    l.now().UTC(),
	}
	if !rec.Consistent() {
		drift := &core.DriftError{UserID: userID, Stored: stored, Computed: computed}
		l.logger.ErrorContext(ctx, "Balance drift detected",
			log.FieldOperation, log.OpReconcile,
			log.FieldUserID, userID,
			"stored", stored.String(),
			"computed", computed.String(),
			"transactions", len(txs))
		return rec, drift
	}

	l.logger.DebugContext(ctx, "Balance reconciled",
		log.FieldUserID, userID,
		log.FieldBalance, stored.String(),
		"transactions", len(txs))
	return rec, nil
}

// ReconcileAll reconciles every user that has a balance. All users are
// checked; drift and failures are joined into the returned error.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]core.Reconciliation, error) {
	users, err := l.store.ListUserIDs(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("list users", err)
	}

	var (
		out  []core.Reconciliation
		errs []error
	)
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := l.Reconcile(ctx, userID)
		if err != nil {
			errs = append(errs, err)
		}
		if rec.UserID != "" {
			out = append(out, rec)
		}
	}
	return out, errors.Join(errs...)
}

func (l *Ledger) publish(ctx context.Context, ev core.LedgerEvent) {
	if l.publisher == nil {
		return
	}
	// The change is already durable; the caller going away must not
	// drop the notification.
	ctx = context.WithoutCancel(ctx)
	if err := l.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventKind, string(ev.Kind),
			log.FieldTransactionID, ev.Transaction.ID,
			log.FieldError, err)
	}
}

func validate(req RecordRequest) error {
	tx := core.Transaction{
		UserID:      req.UserID,
		CategoryID:  req.CategoryID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
	}
	return tx.Validate()
}
