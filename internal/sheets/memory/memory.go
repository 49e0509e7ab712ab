// Package memory is an in-process TransactionMirror.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
	ports "billetera/internal/sheets"
)

var _ ports.TransactionMirror = (*Mirror)(nil)

// Row is one mirrored transaction.
type Row struct {
	Transaction core.Transaction
	Balance     decimal.Decimal
}

type Mirror struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Mirror {
	return &Mirror{}
}

func (m *Mirror) AppendTransaction(_ context.Context, tx core.Transaction, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(tx.ID) >= 0 {
		return nil
	}
	m.rows = append(m.rows, Row{Transaction: tx, Balance: balance})
	return nil
}

func (m *Mirror) DeleteTransaction(_ context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(transactionID); i >= 0 {
		m.rows = append(m.rows[:i], m.rows[i+1:]...)
	}
	return nil
}

// Rows returns a copy of the mirrored rows in append order.
func (m *Mirror) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *Mirror) indexOf(id string) int {
	for i, r := range m.rows {
		if r.Transaction.ID == id {
			return i
		}
	}
	return -1
}
