// Package http serves the ledger as a JSON API.
//
// This file holds the parsing and validation of request bodies and query
// strings shared by the handlers.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/aggregate"
	"billetera/internal/chart"
	"billetera/internal/core"
)

const maxBodyBytes = 64 << 10

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from the query, defaulting each
// missing value to now. Present but malformed values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, fmt.Errorf("%w: year %q", core.ErrInvalidInput, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("%w: month %q", core.ErrInvalidInput, v)
		}
		params.Month = m
	}
	return params, nil
}

// flexibleAmount accepts "12.50", "12,50" and the bare number 12.5.
type flexibleAmount string

func (a *flexibleAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexibleAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or a number")
	}
	*a = flexibleAmount(n.String())
	return nil
}

// CreateTransactionRequest is the body of POST /api/transactions.
type CreateTransactionRequest struct {
	CategoryID  string         `json:"category_id"`
	Type        string         `json:"type"`
	Amount      flexibleAmount `json:"amount"`
	Description string         `json:"description"`
}

// ParsedTransaction is a validated CreateTransactionRequest.
type ParsedTransaction struct {
	CategoryID  string
	Type        core.TxType
	Amount      decimal.Decimal
	Description string
}

// ParseCreateTransaction decodes and validates the request body. Unknown
// fields and trailing data are rejected.
func ParseCreateTransaction(w http.ResponseWriter, r *http.Request) (ParsedTransaction, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateTransactionRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ParsedTransaction{}, fmt.Errorf("%w: body larger than %d bytes", core.ErrInvalidInput, maxBodyBytes)
		}
		return ParsedTransaction{}, fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ParsedTransaction{}, fmt.Errorf("%w: unexpected data after JSON body", core.ErrInvalidInput)
	}

	t, err := core.ParseTxType(req.Type)
	if err != nil {
		return ParsedTransaction{}, err
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return ParsedTransaction{}, err
	}
	categoryID := strings.TrimSpace(req.CategoryID)
	if categoryID == "" {
		return ParsedTransaction{}, core.ErrEmptyCategory
	}

	return ParsedTransaction{
		CategoryID:  categoryID,
		Type:        t,
		Amount:      amount,
		Description: SanitizeInput(req.Description),
	}, nil
}

// DefaultCanvas is used for any breakdown dimension the client omits.
var DefaultCanvas = chart.Canvas{Width: 320, Height: 200, Padding: 20}

// BreakdownParams are the query parameters of GET /api/breakdown.
type BreakdownParams struct {
	Type     core.TxType
	Coloring aggregate.Coloring
	Canvas   chart.Canvas
	// Month is nil when the breakdown covers the whole history.
	Month *MonthParams
}

func ParseBreakdownParams(query url.Values, now time.Time) (BreakdownParams, error) {
	t, err := core.ParseTxType(query.Get("type"))
	if err != nil {
		return BreakdownParams{}, err
	}
	coloring, err := aggregate.ParseColoring(query.Get("coloring"))
	if err != nil {
		return BreakdownParams{}, fmt.Errorf("%w: coloring must be category or palette", core.ErrInvalidInput)
	}

	canvas := DefaultCanvas
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"width", &canvas.Width},
		{"height", &canvas.Height},
		{"padding", &canvas.Padding},
	} {
		v := strings.TrimSpace(query.Get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return BreakdownParams{}, fmt.Errorf("%w: %s %q", core.ErrInvalidInput, f.name, v)
		}
		*f.dst = n
	}

	p := BreakdownParams{Type: t, Coloring: coloring, Canvas: canvas}
	if query.Has("year") || query.Has("month") {
		m, err := ParseMonthParams(query, now)
		if err != nil {
			return BreakdownParams{}, err
		}
		p.Month = &m
	}
	return p, nil
}

// SanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
}
