// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user
// input and formatting them for display. Amounts are decimals rounded to
// two places; floats never take part in balance arithmetic.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a positive amount with two
// decimal places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up on the third decimal place. Signs, exponents, grouping
// separators and zero are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds half-up)
//	ParseAmount("0")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount enforces the positive-amount rule for transactions.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// FormatAmount renders an amount for display, e.g. "$12.34" or "-$5.00".
func FormatAmount(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatSigned renders the transaction's effect with an explicit sign,
// "+$50.00" for income and "-$30.00" for expense.
func FormatSigned(tx Transaction) string {
	if tx.Type == Expense {
		return "-$" + tx.Amount.StringFixed(2)
	}
	return "+$" + tx.Amount.StringFixed(2)
}
