// Package worker consumes ledger events to keep the sheets mirror in step
// and periodically checks every balance against its history.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"billetera/internal/amqp"
	"billetera/internal/core"
	"billetera/internal/log"
	"billetera/internal/sheets"
)

// Reconciler is the slice of the ledger the worker needs.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (core.Reconciliation, error)
	ReconcileAll(ctx context.Context) ([]core.Reconciliation, error)
}

// EventSource delivers ledger events until ctx is done.
type EventSource interface {
	ConsumeLedgerEvents(ctx context.Context, handler amqp.Handler) error
}

type ReconcileWorker struct {
	ledger   Reconciler
	mirror   sheets.TransactionMirror
	interval time.Duration
	logger   *log.Logger
}

// NewReconcileWorker builds a worker. mirror may be nil.
func NewReconcileWorker(ledger Reconciler, mirror sheets.TransactionMirror, interval time.Duration, logger *log.Logger) *ReconcileWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ReconcileWorker{
		ledger:   ledger,
		mirror:   mirror,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent mirrors the transaction when a mirror is configured
// and then reconciles the affected user. Mirror failures are returned so
// the message is redelivered; drift is returned as *core.DriftError.
func (w *ReconcileWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	ev, err := msg.Event()
	if err != nil {
		w.logger.ErrorContext(ctx, "Dropping undecodable ledger event",
			log.FieldTransactionID, msg.TransactionID,
			log.FieldError, err)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldEventKind, string(ev.Kind),
		log.FieldTransactionID, ev.Transaction.ID,
		log.FieldUserID, ev.Transaction.UserID)

	if w.mirror != nil {
		if err := w.mirrorEvent(ctx, ev); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror ledger event",
				log.FieldOperation, log.OpMirror,
				log.FieldTransactionID, ev.Transaction.ID,
				log.FieldError, err)
			return fmt.Errorf("mirror transaction: %w", err)
		}
	}

	if _, err := w.ledger.Reconcile(ctx, ev.Transaction.UserID); err != nil {
		return fmt.Errorf("reconcile %s: %w", ev.Transaction.UserID, err)
	}
	return nil
}

func (w *ReconcileWorker) mirrorEvent(ctx context.Context, ev core.LedgerEvent) error {
	switch ev.Kind {
	case core.EventTransactionRecorded:
		return w.mirror.AppendTransaction(ctx, ev.Transaction, ev.Balance)
	case core.EventTransactionDeleted:
		return w.mirror.DeleteTransaction(ctx, ev.Transaction.ID)
	default:
		return fmt.Errorf("%w: unknown event kind %q", core.ErrInvalidInput, ev.Kind)
	}
}

// SweepAll reconciles every user once. Drift is logged by the ledger and
// reported in the returned counts; it does not fail the sweep.
func (w *ReconcileWorker) SweepAll(ctx context.Context) (checked, drifted int, err error) {
	start := time.Now()
	recs, err := w.ledger.ReconcileAll(ctx)
	checked = len(recs)
	for _, rec := range recs {
		if !rec.Consistent() {
			drifted++
		}
	}

	if err != nil && !onlyDrift(err) {
		w.logger.ErrorContext(ctx, "Reconciliation sweep failed",
			log.FieldOperation, log.OpReconcile,
			"checked", checked,
			log.FieldError, err)
		return checked, drifted, err
	}

	w.logger.InfoContext(ctx, "Reconciliation sweep completed",
		log.FieldOperation, log.OpReconcile,
		"checked", checked,
		"drifted", drifted,
		log.FieldDuration, time.Since(start).Milliseconds())
	return checked, drifted, nil
}

// onlyDrift reports whether every error joined in err is a drift report.
func onlyDrift(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, core.ErrBalanceDrift)
	}
	for _, e := range joined.Unwrap() {
		if !onlyDrift(e) {
			return false
		}
	}
	return true
}

// Run sweeps once at startup, then consumes events from source (when
// non-nil) and sweeps on every tick until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context, source EventSource) error {
	g, ctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			err := source.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		if _, _, err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "Startup sweep failed", log.FieldError, err)
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.InfoContext(ctx, "Reconciliation loop stopped")
				return nil
			case <-ticker.C:
				if _, _, err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
					w.logger.WarnContext(ctx, "Periodic sweep failed", log.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}
