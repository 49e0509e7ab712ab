package aggregate_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billetera/internal/aggregate"
	"billetera/internal/core"
)

func tx(cat, name string, t core.TxType, amount string, at time.Time) core.Transaction {
	return core.Transaction{
		ID:           cat + amount,
		CategoryID:   cat,
		CategoryName: name,
		Type:         t,
		Amount:       decimal.RequireFromString(amount),
		OccurredAt:   at,
	}
}

var may = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestAggregateGroupsByCategory(t *testing.T) {
	txs := []core.Transaction{
		tx("c1", "Comida", core.Expense, "10.50", may),
		tx("s1", "Salario", core.Income, "1000", may),
		tx("t1", "Transporte", core.Expense, "5", may),
		tx("c1", "Comida", core.Expense, "4.50", may),
		tx("x1", "Mascotas", core.Expense, "1", may),
	}

	got := aggregate.Aggregate(txs, core.Expense, aggregate.ByCategory)
	require.Len(t, got, 3)

	assert.Equal(t, "c1", got[0].CategoryID)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "#FF6B6B", got[0].Color)
	assert.Equal(t, "Transporte", got[1].Label)
	assert.Equal(t, "#4ECDC4", got[1].Color)
	assert.Equal(t, "#607D8B", got[2].Color, "unknown category falls back to default color")

	assert.True(t, aggregate.Sum(got).Equal(decimal.NewFromInt(21)))
}

func TestAggregateNeverEmitsEmptyCategories(t *testing.T) {
	txs := []core.Transaction{tx("s1", "Salario", core.Income, "1", may)}
	assert.Empty(t, aggregate.Aggregate(txs, core.Expense, aggregate.ByCategory))
	assert.Empty(t, aggregate.Aggregate(nil, core.Income, aggregate.ByPalette))
	assert.True(t, aggregate.Sum(nil).IsZero())
}

func TestAggregatePaletteCyclesByIndex(t *testing.T) {
	var txs []core.Transaction
	for i := 0; i < 7; i++ {
		id := string(rune('a' + i))
		txs = append(txs, tx(id, id, core.Income, "1", may))
	}
	got := aggregate.Aggregate(txs, core.Income, aggregate.ByPalette)
	require.Len(t, got, 7)

	want := []string{"#4CAF50", "#81C784", "#A5D6A7", "#C8E6C9", "#E8F5E9", "#4CAF50", "#81C784"}
	for i, ct := range got {
		assert.Equal(t, want[i], ct.Color, "index %d", i)
	}
	assert.Equal(t, "#FFE7E7", aggregate.PaletteColor(core.Expense, 9))
}

func TestParseColoring(t *testing.T) {
	tests := []struct {
		in      string
		want    aggregate.Coloring
		wantErr bool
	}{
		{"", aggregate.ByCategory, false},
		{"category", aggregate.ByCategory, false},
		{"Palette", aggregate.ByPalette, false},
		{"rainbow", aggregate.ByCategory, true},
	}
	for _, tt := range tests {
		got, err := aggregate.ParseColoring(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrInvalidInput)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSummarize(t *testing.T) {
	var txs []core.Transaction
	for i := 0; i < 7; i++ {
		txs = append(txs, tx("c1", "Comida", core.Expense, "10", may.Add(time.Duration(i)*time.Hour)))
	}
	txs = append(txs,
		tx("s1", "Salario", core.Income, "500", may.AddDate(0, 0, -5)),
		tx("s1", "Salario", core.Income, "999", may.AddDate(0, -1, 0)),
	)

	s := aggregate.Summarize(txs, 2024, 5, 5)
	assert.Equal(t, 2024, s.Year)
	assert.Equal(t, 5, s.Month)
	assert.True(t, s.Income.Equal(decimal.NewFromInt(500)))
	assert.True(t, s.Expense.Equal(decimal.NewFromInt(70)))
	assert.True(t, s.Net.Equal(decimal.NewFromInt(430)))
	require.Len(t, s.Recent, 5)
	assert.True(t, s.Recent[0].OccurredAt.Equal(may.Add(6*time.Hour)))

	empty := aggregate.Summarize(nil, 2024, 1, 5)
	assert.True(t, empty.Net.IsZero())
	assert.Empty(t, empty.Recent)
}

func TestInMonthKeepsOrder(t *testing.T) {
	txs := []core.Transaction{
		tx("c1", "Comida", core.Expense, "1", may.Add(time.Hour)),
		tx("c1", "Comida", core.Expense, "2", may.AddDate(0, -1, 0)),
		tx("c2", "Salario", core.Income, "3", may),
		tx("c2", "Salario", core.Income, "4", may.AddDate(1, 0, 0)),
	}

	got := aggregate.InMonth(txs, 2024, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "c11", got[0].ID)
	assert.Equal(t, "c23", got[1].ID)
	assert.Empty(t, aggregate.InMonth(txs, 2023, 5))
}
