// Package aggregate collapses transaction lists into per-category totals
// and monthly summaries.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/catalog"
	"billetera/internal/core"
)

// Coloring selects how totals are colored.
type Coloring int

const (
	// ByCategory uses each category's decorated color.
	ByCategory Coloring = iota
	// ByPalette cycles the legend palette of the type by output index.
	ByPalette
)

// ParseColoring accepts "category" and "palette"; empty means ByCategory.
func ParseColoring(s string) (Coloring, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "category":
		return ByCategory, nil
	case "palette":
		return ByPalette, nil
	default:
		return ByCategory, core.ErrInvalidInput
	}
}

var palettes = map[core.TxType][5]string{
	core.Income:  {"#4CAF50", "#81C784", "#A5D6A7", "#C8E6C9", "#E8F5E9"},
	core.Expense: {"#FF6B6B", "#FF8A8A", "#FFA9A9", "#FFC8C8", "#FFE7E7"},
}

// PaletteColor returns the legend color for output index i.
func PaletteColor(t core.TxType, i int) string {
	p, ok := palettes[t]
	if !ok {
		return catalog.DefaultDecoration.Color
	}
	return p[i%len(p)]
}

// Aggregate sums the transactions of type t per category. Categories are
// listed in order of first appearance and only when they have at least
// one matching transaction.
func Aggregate(txs []core.Transaction, t core.TxType, coloring Coloring) []core.CategoryTotal {
	byCat := make(map[string]int)
	var out []core.CategoryTotal
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		if i, seen := byCat[tx.CategoryID]; seen {
			out[i].Amount = out[i].Amount.Add(tx.Amount)
			continue
		}
		label := tx.CategoryName
		if label == "" {
			label = tx.CategoryID
		}
		byCat[tx.CategoryID] = len(out)
		out = append(out, core.CategoryTotal{
			CategoryID: tx.CategoryID,
			Label:      label,
			Amount:     tx.Amount,
		})
	}

	for i := range out {
		switch coloring {
		case ByPalette:
			out[i].Color = PaletteColor(t, i)
		default:
			d, _ := catalog.DecorateName(t, out[i].Label)
			out[i].Color = d.Color
		}
	}
	return out
}

// Sum is the total of all entries; it is the percentage base for a chart
// of the same totals.
func Sum(totals []core.CategoryTotal) decimal.Decimal {
	sum := decimal.Zero
	for _, ct := range totals {
		sum = sum.Add(ct.Amount)
	}
	return sum
}

// RecentTransactions is how many transactions a monthly summary keeps.
const RecentTransactions = 5

// InMonth keeps the transactions that occurred in the given month, in
// their original order.
func InMonth(txs []core.Transaction, year, month int) []core.Transaction {
	var out []core.Transaction
	for _, tx := range txs {
		if tx.OccurredAt.Year() == year && tx.OccurredAt.Month() == time.Month(month) {
			out = append(out, tx)
		}
	}
	return out
}

// Summarize totals income and expense for the given month and keeps the
// newest recent transactions of that month. txs may be in any order.
func Summarize(txs []core.Transaction, year, month, recent int) core.MonthSummary {
	s := core.MonthSummary{
		Year:    year,
		Month:   month,
		Income:  decimal.Zero,
		Expense: decimal.Zero,
	}

	inMonth := InMonth(txs, year, month)
	for _, tx := range inMonth {
		switch tx.Type {
		case core.Income:
			s.Income = s.Income.Add(tx.Amount)
		case core.Expense:
			s.Expense = s.Expense.Add(tx.Amount)
		}
	}
	s.Net = s.Income.Sub(s.Expense)

	sort.SliceStable(inMonth, func(i, j int) bool {
		return inMonth[i].OccurredAt.After(inMonth[j].OccurredAt)
	})
	if recent >= 0 && len(inMonth) > recent {
		inMonth = inMonth[:recent]
	}
	s.Recent = inMonth
	return s
}
