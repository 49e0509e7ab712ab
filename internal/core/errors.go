package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error taxonomy. Callers classify with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrBalanceDrift        = errors.New("balance drift")
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be a positive decimal", ErrInvalidInput)
	ErrInvalidType        = fmt.Errorf("%w: type must be income or expense", ErrInvalidInput)
	ErrTypeMismatch       = fmt.Errorf("%w: transaction type does not match category type", ErrInvalidInput)
	ErrEmptyUser          = fmt.Errorf("%w: user id is required", ErrInvalidInput)
	ErrEmptyCategory      = fmt.Errorf("%w: category id is required", ErrInvalidInput)
	ErrEmptyCategoryName  = fmt.Errorf("%w: category name is required", ErrInvalidInput)
	ErrDescriptionTooLong = fmt.Errorf("%w: description too long (max %d characters)", ErrInvalidInput, MaxDescriptionLength)

	ErrCategoryNotFound    = fmt.Errorf("category %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
)

// InsufficientBalanceError is returned when an expense exceeds the
// current balance. It matches ErrInsufficientBalance.
type InsufficientBalanceError struct {
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func NewInsufficientBalance(balance, requested decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{Balance: balance, Requested: requested}
}

// Deficit is how much the expense exceeds the balance.
func (e *InsufficientBalanceError) Deficit() decimal.Decimal {
	return e.Requested.Sub(e.Balance)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s, deficit %s",
		e.Requested.StringFixed(2), e.Balance.StringFixed(2), e.Deficit().StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// PersistenceError wraps an opaque collaborator failure. It matches both
// ErrPersistence and its cause.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// DriftError reports a balance that no longer equals the signed sum of
// the user's history. It matches ErrBalanceDrift.
type DriftError struct {
	UserID   string
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("balance drift for user %s: stored %s, history sums to %s",
		e.UserID, e.Stored.StringFixed(2), e.Computed.StringFixed(2))
}

func (e *DriftError) Is(target error) bool {
	return target == ErrBalanceDrift
}

// IsExpected reports whether err is one of the recoverable outcomes a
// caller should show inline rather than as a generic failure.
func IsExpected(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotFound)
}
