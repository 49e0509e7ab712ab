// Package export renders a month's figures as an XLSX workbook.
package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"billetera/internal/aggregate"
	"billetera/internal/core"
)

const (
	SummarySheet = "Resumen"
	IncomeSheet  = "Ingresos"
	ExpenseSheet = "Gastos"
)

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// MonthXLSX builds the workbook for one month of a user's transactions.
func MonthXLSX(txs []core.Transaction, year, month int) ([]byte, error) {
	monthTxs := aggregate.InMonth(txs, year, month)
	summary := aggregate.Summarize(monthTxs, year, month, aggregate.RecentTransactions)
	income := aggregate.Aggregate(monthTxs, core.Income, aggregate.ByCategory)
	expense := aggregate.Aggregate(monthTxs, core.Expense, aggregate.ByCategory)
	return BreakdownXLSX(summary, income, expense)
}

// BreakdownXLSX writes a summary sheet with the month's totals and recent
// transactions, followed by one category breakdown sheet per type.
func BreakdownXLSX(summary core.MonthSummary, incomeTotals, expenseTotals []core.CategoryTotal) ([]byte, error) {
	if summary.Month < 1 || summary.Month > 12 {
		return nil, fmt.Errorf("%w: month %d", core.ErrInvalidInput, summary.Month)
	}

	xlsx := excelize.NewFile()
	defer xlsx.Close()

	_ = xlsx.SetAppProps(&excelize.AppProperties{
		Application: "billetera",
		DocSecurity: 2,
	})

	sheet := xlsx.GetSheetName(xlsx.GetActiveSheetIndex())
	if err := xlsx.SetSheetName(sheet, SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	writeSummarySheet(xlsx, SummarySheet, summary)

	for _, b := range []struct {
		sheet  string
		title  string
		totals []core.CategoryTotal
	}{
		{IncomeSheet, "Ingresos por categoría", incomeTotals},
		{ExpenseSheet, "Gastos por categoría", expenseTotals},
	} {
		if _, err := xlsx.NewSheet(b.sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", b.sheet, err)
		}
		writeBreakdownSheet(xlsx, b.sheet, b.title, b.totals)
	}

	buf, err := xlsx.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(xlsx *excelize.File, sheet string, s core.MonthSummary) {
	_ = xlsx.SetColWidth(sheet, "A", "A", 20)
	_ = xlsx.SetColWidth(sheet, "B", "B", 24)
	_ = xlsx.SetColWidth(sheet, "C", "C", 40)
	_ = xlsx.SetColWidth(sheet, "D", "D", 15)

	row := 1
	_ = xlsx.SetCellValue(sheet, cell('A', row), fmt.Sprintf("Resumen de %s %d", monthNames[s.Month-1], s.Year))
	setStyle(xlsx, sheet, cell('A', row), cell('D', row), defaultStyle(), fontBold(), thickBorder("bottom"))
	row += 2

	for _, line := range []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Ingresos", s.Income},
		{"Gastos", s.Expense},
		{"Neto", s.Net},
	} {
		_ = xlsx.SetCellValue(sheet, cell('A', row), line.label)
		_ = xlsx.SetCellValue(sheet, cell('B', row), line.amount.InexactFloat64())
		setStyle(xlsx, sheet, cell('B', row), cell('B', row), defaultStyle(), moneyFormat())
		row++
	}
	setStyle(xlsx, sheet, cell('A', row-1), cell('B', row-1), defaultStyle(), fontBold(), moneyFormat(), thinBorder("top"))
	row++

	if len(s.Recent) == 0 {
		return
	}

	_ = xlsx.SetCellValue(sheet, cell('A', row), "Fecha")
	_ = xlsx.SetCellValue(sheet, cell('B', row), "Categoría")
	_ = xlsx.SetCellValue(sheet, cell('C', row), "Descripción")
	_ = xlsx.SetCellValue(sheet, cell('D', row), "Monto")
	setStyle(xlsx, sheet, cell('A', row), cell('C', row), defaultStyle(), fontBold(), thinBorder("bottom"))
	setStyle(xlsx, sheet, cell('D', row), cell('D', row), defaultStyle(), fontBold(), thinBorder("bottom"), textAlignment("right"))
	row++

	for _, tx := range s.Recent {
		category := tx.CategoryName
		if category == "" {
			category = tx.CategoryID
		}
		_ = xlsx.SetCellValue(sheet, cell('A', row), tx.OccurredAt.Format("2006-01-02 15:04"))
		_ = xlsx.SetCellValue(sheet, cell('B', row), category)
		_ = xlsx.SetCellValue(sheet, cell('C', row), tx.Description)
		_ = xlsx.SetCellValue(sheet, cell('D', row), tx.SignedAmount().InexactFloat64())
		setStyle(xlsx, sheet, cell('D', row), cell('D', row), defaultStyle(), moneyFormat())
		row++
	}
}

func writeBreakdownSheet(xlsx *excelize.File, sheet, title string, totals []core.CategoryTotal) {
	_ = xlsx.SetColWidth(sheet, "A", "A", 3)
	_ = xlsx.SetColWidth(sheet, "B", "B", 30)
	_ = xlsx.SetColWidth(sheet, "C", "D", 15)

	row := 1
	_ = xlsx.SetCellValue(sheet, cell('B', row), title)
	setStyle(xlsx, sheet, cell('A', row), cell('D', row), defaultStyle(), fontBold(), thickBorder("bottom"))
	row += 2

	if len(totals) == 0 {
		_ = xlsx.SetCellValue(sheet, cell('B', row), "Sin movimientos")
		return
	}

	_ = xlsx.SetCellValue(sheet, cell('B', row), "Categoría")
	_ = xlsx.SetCellValue(sheet, cell('C', row), "Monto")
	_ = xlsx.SetCellValue(sheet, cell('D', row), "Porcentaje")
	setStyle(xlsx, sheet, cell('A', row), cell('B', row), defaultStyle(), fontBold(), thinBorder("bottom"))
	setStyle(xlsx, sheet, cell('C', row), cell('D', row), defaultStyle(), fontBold(), thinBorder("bottom"), textAlignment("right"))
	row++

	sum := decimal.Zero
	for _, ct := range totals {
		sum = sum.Add(ct.Amount)
	}

	first := row
	for _, ct := range totals {
		if ct.Color != "" {
			setStyle(xlsx, sheet, cell('A', row), cell('A', row), swatch(ct.Color))
		}
		_ = xlsx.SetCellValue(sheet, cell('B', row), ct.Label)
		_ = xlsx.SetCellValue(sheet, cell('C', row), ct.Amount.InexactFloat64())
		setStyle(xlsx, sheet, cell('C', row), cell('C', row), defaultStyle(), moneyFormat())
		if !sum.IsZero() {
			_ = xlsx.SetCellValue(sheet, cell('D', row), ct.Amount.Div(sum).InexactFloat64())
			setStyle(xlsx, sheet, cell('D', row), cell('D', row), defaultStyle(), percentFormat())
		}
		row++
	}

	_ = xlsx.SetCellValue(sheet, cell('B', row), "Total")
	_ = xlsx.SetCellFormula(sheet, cell('C', row), fmt.Sprintf("SUM(%s:%s)", cell('C', first), cell('C', row-1)))
	setStyle(xlsx, sheet, cell('A', row), cell('D', row), defaultStyle(), fontBold(), moneyFormat(), thickBorder("top"))
}
