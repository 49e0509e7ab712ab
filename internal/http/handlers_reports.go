package http

import (
	"errors"
	"fmt"
	"net/http"

	"billetera/internal/aggregate"
	"billetera/internal/chart"
	"billetera/internal/export"
	"billetera/internal/log"
)

// handleBreakdown totals one type by category and lays the totals out on
// the requested canvas. An empty set answers no_data instead of a plot.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	p, err := ParseBreakdownParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	txs, err := s.ledger.ListTransactions(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	resp := BreakdownResponse{Type: p.Type}
	if p.Month != nil {
		txs = aggregate.InMonth(txs, p.Month.Year, p.Month.Month)
		resp.Year, resp.Month = p.Month.Year, p.Month.Month
	}

	totals := aggregate.Aggregate(txs, p.Type, p.Coloring)
	sum := aggregate.Sum(totals)
	resp.Total = sum.StringFixed(2)
	resp.Totals = NewTotalResponses(totals)

	plot, err := chart.Layout(chart.FromTotals(totals), p.Canvas, sum.InexactFloat64())
	switch {
	case errors.Is(err, chart.ErrNoData):
		resp.NoData = true
	case err != nil:
		s.writeError(w, r, log.OpList, err)
		return
	default:
		resp.Plot = &plot
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	m, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	summary := aggregate.Summarize(txs, m.Year, m.Month, aggregate.RecentTransactions)
	NewJSONResponse().Body(NewSummaryResponse(summary)).Write(w)
}

// handleExport streams the month's summary and category breakdowns as an
// XLSX workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	m, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	data, err := export.MonthXLSX(txs, m.Year, m.Month)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="billetera-%04d-%02d.xlsx"`, m.Year, m.Month))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
