// This file implements the builder used by every handler to write JSON
// responses and the wire shapes of the API.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"billetera/internal/catalog"
	"billetera/internal/chart"
	"billetera/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// Error codes carried in ErrorBody.Code.
const (
	CodeInvalidInput        = "invalid_input"
	CodeInsufficientBalance = "insufficient_balance"
	CodeNotFound            = "not_found"
	CodeUnauthorized        = "unauthorized"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Deficit string `json:"deficit,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Code: code})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeInvalidInput, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, "internal error")
}

// InsufficientBalanceResponse is a 409 that reports the deficit.
func InsufficientBalanceResponse(e *core.InsufficientBalanceError) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusConflict).
		Body(ErrorBody{
			Error:   e.Error(),
			Code:    CodeInsufficientBalance,
			Deficit: e.Deficit().StringFixed(2),
		})
}

// TransactionResponse is a transaction with display-ready amounts.
type TransactionResponse struct {
	ID           string      `json:"id"`
	CategoryID   string      `json:"category_id"`
	CategoryName string      `json:"category_name"`
	Type         core.TxType `json:"type"`
	Amount       string      `json:"amount"`
	Signed       string      `json:"signed"`
	Display      string      `json:"display"`
	Description  string      `json:"description"`
	OccurredAt   time.Time   `json:"occurred_at"`
	Icon         string      `json:"icon"`
	Color        string      `json:"color"`
}

func NewTransactionResponse(tx core.Transaction) TransactionResponse {
	d, _ := catalog.DecorateName(tx.Type, tx.CategoryName)
	return TransactionResponse{
		ID:           tx.ID,
		CategoryID:   tx.CategoryID,
		CategoryName: tx.CategoryName,
		Type:         tx.Type,
		Amount:       tx.Amount.StringFixed(2),
		Signed:       tx.SignedAmount().StringFixed(2),
		Display:      core.FormatSigned(tx),
		Description:  tx.Description,
		OccurredAt:   tx.OccurredAt,
		Icon:         d.Icon,
		Color:        d.Color,
	}
}

func NewTransactionResponses(txs []core.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = NewTransactionResponse(tx)
	}
	return out
}

type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
	Display string `json:"display"`
}

func NewBalanceResponse(userID string, b decimal.Decimal) BalanceResponse {
	return BalanceResponse{UserID: userID, Balance: b.StringFixed(2), Display: core.FormatAmount(b)}
}

// CreatedResponse is returned by POST /api/transactions.
type CreatedResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     BalanceResponse     `json:"balance"`
}

type CategoryResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        core.TxType `json:"type"`
	Icon        string      `json:"icon"`
	Color       string      `json:"color"`
	Description string      `json:"description"`
}

func NewCategoryResponses(cats []core.Category) []CategoryResponse {
	out := make([]CategoryResponse, len(cats))
	for i, c := range cats {
		d := catalog.Decorate(c)
		// Values stored on the category win over the decoration table.
		if c.Description != "" {
			d.Description = c.Description
		}
		if c.Color != "" {
			d.Color = c.Color
		}
		out[i] = CategoryResponse{
			ID:          c.ID,
			Name:        c.Name,
			Type:        c.Type,
			Icon:        d.Icon,
			Color:       d.Color,
			Description: d.Description,
		}
	}
	return out
}

type MeResponse struct {
	core.User
	DisplayName string `json:"display_name"`
}

type TotalResponse struct {
	CategoryID string `json:"category_id"`
	Label      string `json:"label"`
	Amount     string `json:"amount"`
	Color      string `json:"color"`
}

type BreakdownResponse struct {
	Type   core.TxType     `json:"type"`
	Year   int             `json:"year,omitempty"`
	Month  int             `json:"month,omitempty"`
	Total  string          `json:"total"`
	Totals []TotalResponse `json:"totals"`
	NoData bool            `json:"no_data"`
	Plot   *chart.Plot     `json:"plot,omitempty"`
}

func NewTotalResponses(totals []core.CategoryTotal) []TotalResponse {
	out := make([]TotalResponse, len(totals))
	for i, ct := range totals {
		out[i] = TotalResponse{
			CategoryID: ct.CategoryID,
			Label:      ct.Label,
			Amount:     ct.Amount.StringFixed(2),
			Color:      ct.Color,
		}
	}
	return out
}

type SummaryResponse struct {
	Year    int                   `json:"year"`
	Month   int                   `json:"month"`
	Income  string                `json:"income"`
	Expense string                `json:"expense"`
	Net     string                `json:"net"`
	Recent  []TransactionResponse `json:"recent"`
}

func NewSummaryResponse(s core.MonthSummary) SummaryResponse {
	return SummaryResponse{
		Year:    s.Year,
		Month:   s.Month,
		Income:  s.Income.StringFixed(2),
		Expense: s.Expense.StringFixed(2),
		Net:     s.Net.StringFixed(2),
		Recent:  NewTransactionResponses(s.Recent),
	}
}
