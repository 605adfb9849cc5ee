package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ledger/internal/shared/money"
)

const (
	// NumberLength is the fixed width of a human-facing account number.
	NumberLength = 10
	// MinNameLength is the minimum number of characters in an account name.
	MinNameLength = 2
)

// Domain errors
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountNumberTaken = errors.New("account number already in use")
)

// Account is a balance-holding account owned by a single user.
// Balance is only ever changed by the ledger engine.
type Account struct {
	ID            string       `json:"id"`
	UserID        int64        `json:"user_id"`
	AccountNumber string       `json:"account_number"`
	Name          string       `json:"account_name"`
	Balance       money.Amount `json:"balance"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CreateParams contains parameters for creating a new account
type CreateParams struct {
	ID            string
	UserID        int64
	AccountNumber string
	Name          string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: account ID is required", ErrInvalidInput)
	}
	if p.UserID <= 0 {
		return fmt.Errorf("%w: valid user ID is required", ErrInvalidInput)
	}
	if !IsValidAccountNumber(p.AccountNumber) {
		return fmt.Errorf("%w: account number must be %d digits", ErrInvalidInput, NumberLength)
	}
	return ValidateName(p.Name)
}

// ValidateName checks the account name length after trimming spaces.
func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinNameLength {
		return fmt.Errorf("%w: account name must be at least %d characters", ErrInvalidInput, MinNameLength)
	}
	return nil
}

// IsValidAccountNumber reports whether s is exactly NumberLength ASCII digits.
func IsValidAccountNumber(s string) bool {
	if len(s) != NumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
