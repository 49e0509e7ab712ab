package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// MaxDescriptionLength bounds the free-text description of a transaction.
const MaxDescriptionLength = 200

type (
	// TxType tells whether a category or transaction adds to or
	// subtracts from the balance.
	TxType string

	Category struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Type        TxType `json:"type"`
		Color       string `json:"color"`
		Description string `json:"description"`
	}

	// CategorySeed is one entry of the default catalog.
	CategorySeed struct {
		Name string `json:"name" yaml:"name"`
		Type TxType `json:"type" yaml:"type"`
	}

	Transaction struct {
		ID           string          `json:"id"`
		UserID       string          `json:"user_id"`
		CategoryID   string          `json:"category_id"`
		CategoryName string          `json:"category_name,omitempty"`
		Type         TxType          `json:"type"`
		Amount       decimal.Decimal `json:"amount"`
		Description  string          `json:"description,omitempty"`
		OccurredAt   time.Time       `json:"occurred_at"`
	}

	Balance struct {
		UserID string          `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
	}

	// User is the identity handed out by the auth collaborator.
	User struct {
		ID        string `json:"id"`
		FirstName string `json:"nombre"`
		LastName  string `json:"apellido"`
		Email     string `json:"gmail"`
	}
)

// ParseTxType accepts the canonical names and the Spanish ones used by
// older clients ("ingreso", "egreso").
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "ingreso":
		return Income, nil
	case "expense", "egreso", "gasto":
		return Expense, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TxType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (t TxType) String() string {
	return string(t)
}

// Sign returns +1 for income and -1 for expense.
func (t TxType) Sign() decimal.Decimal {
	if t == Expense {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategoryName
	}
	return c.Type.Validate()
}

func (s CategorySeed) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyCategoryName
	}
	return s.Type.Validate()
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(tx.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if err := tx.Type.Validate(); err != nil {
		return err
	}
	if err := ValidateAmount(tx.Amount); err != nil {
		return err
	}
	if utf8.RuneCountInString(tx.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// SignedAmount is the transaction's effect on the balance.
func (tx Transaction) SignedAmount() decimal.Decimal {
	return tx.Amount.Mul(tx.Type.Sign())
}

// Apply returns the balance after tx is applied to it.
func (b Balance) Apply(tx Transaction) Balance {
	return Balance{UserID: b.UserID, Amount: b.Amount.Add(tx.SignedAmount())}
}

// Revert returns the balance after tx's effect is removed from it.
func (b Balance) Revert(tx Transaction) Balance {
	return Balance{UserID: b.UserID, Amount: b.Amount.Sub(tx.SignedAmount())}
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
