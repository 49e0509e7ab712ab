package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetera/internal/amqp"
	"billetera/internal/catalog"
	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
	mirrormem "billetera/internal/sheets/memory"
	"billetera/internal/storage/memory"
	"billetera/internal/worker"
)

type fixture struct {
	store  *memory.Store
	ledger *ledger.Ledger
	ids    map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cat := catalog.New(store, catalog.WithLogger(log.Discard()))
	_, err := cat.EnsureSeeded(ctx, catalog.DefaultSeeds())
	require.NoError(t, err)

	all, err := store.ListCategories(ctx)
	require.NoError(t, err)
	ids := make(map[string]string)
	for _, c := range all {
		ids[string(c.Type)+"/"+c.Name] = c.ID
	}
	return &fixture{
		store:  store,
		ledger: ledger.New(store, cat, ledger.WithLogger(log.Discard())),
		ids:    ids,
	}
}

func (f *fixture) record(t *testing.T, user string, typ core.TxType, category, amount string) core.Transaction {
	t.Helper()
	tx, err := f.ledger.Record(context.Background(), ledger.RecordRequest{
		UserID:     user,
		CategoryID: f.ids[string(typ)+"/"+category],
		Type:       typ,
		Amount:     decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return tx
}

func message(kind core.EventKind, tx core.Transaction, balance string) *amqp.LedgerEventMessage {
	return amqp.NewLedgerEventMessage(core.LedgerEvent{
		Kind:        kind,
		Transaction: tx,
		Balance:     decimal.RequireFromString(balance),
		At:          time.Now(),
	})
}

type failingMirror struct{ err error }

func (m failingMirror) AppendTransaction(context.Context, core.Transaction, decimal.Decimal) error {
	return m.err
}

func (m failingMirror) DeleteTransaction(context.Context, string) error { return m.err }

func TestHandleLedgerEventMirrorsAndReconciles(t *testing.T) {
	f := newFixture(t)
	mirror := mirrormem.New()
	w := worker.NewReconcileWorker(f.ledger, mirror, time.Minute, log.Discard())
	ctx := context.Background()

	income := f.record(t, "u1", core.Income, "Salario", "100")
	expense := f.record(t, "u1", core.Expense, "Comida", "25")

	require.NoError(t, w.HandleLedgerEvent(ctx, message(core.EventTransactionRecorded, income, "100")))
	require.NoError(t, w.HandleLedgerEvent(ctx, message(core.EventTransactionRecorded, expense, "75")))
	// Redelivery is harmless.
	require.NoError(t, w.HandleLedgerEvent(ctx, message(core.EventTransactionRecorded, expense, "75")))

	rows := mirror.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, income.ID, rows[0].Transaction.ID)
	assert.True(t, rows[1].Balance.Equal(decimal.RequireFromString("75")))

	_, err := f.ledger.Delete(ctx, expense.ID)
	require.NoError(t, err)
	require.NoError(t, w.HandleLedgerEvent(ctx, message(core.EventTransactionDeleted, expense, "100")))
	assert.Len(t, mirror.Rows(), 1)
}

func TestHandleLedgerEventReportsDrift(t *testing.T) {
	f := newFixture(t)
	w := worker.NewReconcileWorker(f.ledger, nil, time.Minute, log.Discard())

	tx := f.record(t, "u1", core.Income, "Salario", "100")
	f.store.SetBalance("u1", decimal.RequireFromString("99"))

	err := w.HandleLedgerEvent(context.Background(), message(core.EventTransactionRecorded, tx, "100"))
	assert.ErrorIs(t, err, core.ErrBalanceDrift)

	var drift *core.DriftError
	require.True(t, errors.As(err, &drift))
	assert.Equal(t, "u1", drift.UserID)
}

func TestHandleLedgerEventMirrorFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("sheets unavailable")
	w := worker.NewReconcileWorker(f.ledger, failingMirror{err: boom}, time.Minute, log.Discard())

	tx := f.record(t, "u1", core.Income, "Salario", "10")
	err := w.HandleLedgerEvent(context.Background(), message(core.EventTransactionRecorded, tx, "10"))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrBalanceDrift)
}

func TestHandleLedgerEventDropsBadAmounts(t *testing.T) {
	f := newFixture(t)
	w := worker.NewReconcileWorker(f.ledger, failingMirror{err: errors.New("unreachable")}, time.Minute, log.Discard())

	msg := message(core.EventTransactionRecorded, core.Transaction{ID: "t", UserID: "u1"}, "0")
	msg.Amount = "not-a-number"
	assert.NoError(t, w.HandleLedgerEvent(context.Background(), msg))
}

func TestSweepAllCountsDrift(t *testing.T) {
	f := newFixture(t)
	w := worker.NewReconcileWorker(f.ledger, nil, time.Minute, log.Discard())

	f.record(t, "u1", core.Income, "Salario", "100")
	f.record(t, "u2", core.Income, "Regalos", "40")
	f.record(t, "u3", core.Income, "Freelance", "5")
	f.store.SetBalance("u2", decimal.RequireFromString("41"))

	checked, drifted, err := w.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	assert.Equal(t, 1, drifted)
}

// stubSource hands a fixed batch of messages to the handler and then
// blocks until cancelled.
type stubSource struct {
	msgs    []*amqp.LedgerEventMessage
	results chan error
}

func (s *stubSource) ConsumeLedgerEvents(ctx context.Context, handler amqp.Handler) error {
	for _, m := range s.msgs {
		s.results <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	mirror := mirrormem.New()
	w := worker.NewReconcileWorker(f.ledger, mirror, 10*time.Millisecond, log.Discard())

	tx := f.record(t, "u1", core.Income, "Salario", "100")
	src := &stubSource{
		msgs:    []*amqp.LedgerEventMessage{message(core.EventTransactionRecorded, tx, "100")},
		results: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, src) }()

	select {
	case err := <-src.results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Len(t, mirror.Rows(), 1)
}
