package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

// LedgerEventMessage is the wire form of a committed ledger change.
// Amounts travel as decimal strings.
type LedgerEventMessage struct {
	Kind          core.EventKind `json:"kind"`
	TransactionID string         `json:"transaction_id"`
	UserID        string         `json:"user_id"`
	CategoryID    string         `json:"category_id"`
	CategoryName  string         `json:"category_name,omitempty"`
	Type          core.TxType    `json:"type"`
	Amount        string         `json:"amount"`
	Description   string         `json:"description,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Balance       string         `json:"balance"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewLedgerEventMessage converts a ledger event into its wire form.
func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	tx := ev.Transaction
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LedgerEventMessage{
		Kind:          ev.Kind,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		CategoryID:    tx.CategoryID,
		CategoryName:  tx.CategoryName,
		Type:          tx.Type,
		Amount:        tx.Amount.String(),
		Description:   tx.Description,
		OccurredAt:    tx.OccurredAt,
		Balance:       ev.Balance.String(),
		Timestamp:     ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON parses and validates a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *LedgerEventMessage) Validate() error {
	switch m.Kind {
	case core.EventTransactionRecorded, core.EventTransactionDeleted:
	default:
		return fmt.Errorf("%w: unknown event kind %q", core.ErrInvalidInput, m.Kind)
	}
	if m.TransactionID == "" || m.UserID == "" {
		return fmt.Errorf("%w: transaction and user id are required", core.ErrInvalidInput)
	}
	return nil
}

// Event rebuilds the ledger event carried by the message.
func (m *LedgerEventMessage) Event() (core.LedgerEvent, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return core.LedgerEvent{}, fmt.Errorf("%w: amount %q", core.ErrInvalidInput, m.Amount)
	}
	balance, err := decimal.NewFromString(m.Balance)
	if err != nil {
		return core.LedgerEvent{}, fmt.Errorf("%w: balance %q", core.ErrInvalidInput, m.Balance)
	}
	return core.LedgerEvent{
		Kind: m.Kind,
		Transaction: core.Transaction{
			ID:           m.TransactionID,
			UserID:       m.UserID,
			CategoryID:   m.CategoryID,
			CategoryName: m.CategoryName,
			Type:         m.Type,
			Amount:       amount,
			Description:  m.Description,
			OccurredAt:   m.OccurredAt,
		},
		Balance: balance,
		At:      m.Timestamp,
	}, nil
}
