package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventTransactionRecorded EventKind = "transaction.recorded"
	EventTransactionDeleted  EventKind = "transaction.deleted"
)

type EventKind string

// LedgerEvent describes a committed ledger change. Balance is the
// balance right after the change.
type LedgerEvent struct {
	Kind        EventKind       `json:"kind"`
	Transaction Transaction     `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
	At          time.Time       `json:"at"`
}
