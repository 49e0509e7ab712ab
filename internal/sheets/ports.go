package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps a spreadsheet copy of the ledger. Both
	// operations are idempotent so redelivered events are harmless.
	TransactionMirror interface {
		AppendTransaction(ctx context.Context, tx core.Transaction, balance decimal.Decimal) error
		DeleteTransaction(ctx context.Context, transactionID string) error
	}
)
