package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the sum of one category's transactions of a given type.
type CategoryTotal struct {
	CategoryID string          `json:"category_id"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Color      string          `json:"color"`
}

// MonthSummary is a compact summary for a specific year+month.
type MonthSummary struct {
	Year    int             `json:"year"`
	Month   int             `json:"month"` // 1-12
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	Recent  []Transaction   `json:"recent"`
}

// Reconciliation is the result of comparing a stored balance against
// the signed sum of the user's history.
type Reconciliation struct {
	UserID       string          `json:"user_id"`
	Stored       decimal.Decimal `json:"stored"`
	Computed     decimal.Decimal `json:"computed"`
	Transactions int             `json:"transactions"`
	CheckedAt    time.Time       `json:"checked_at"`
}

// Consistent reports whether the stored balance equals the history sum.
func (r Reconciliation) Consistent() bool {
	return r.Stored.Equal(r.Computed)
}
