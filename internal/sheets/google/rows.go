package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
)

// Header is the column layout of the mirror tab.
var Header = []any{"ID", "Fecha", "Usuario", "Tipo", "Categoría", "Monto", "Descripción", "Saldo"}

func formatRow(tx core.Transaction, balance decimal.Decimal) []any {
	return []any{
		tx.ID,
		tx.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
		tx.UserID,
		tx.Type.String(),
		tx.CategoryName,
		tx.SignedAmount().StringFixed(2),
		tx.Description,
		balance.StringFixed(2),
	}
}

func indexOfID(values [][]any, id string) int {
	id = strings.TrimSpace(id)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i
		}
	}
	return -1
}
