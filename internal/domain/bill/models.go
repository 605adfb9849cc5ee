package bill

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/shared/money"
)

// Type enumerates the kinds of obligations a bill may represent.
type Type string

const (
	TypeElectricity Type = "electricity"
	TypeWater       Type = "water"
	TypeInternet    Type = "internet"
	TypePhone       Type = "phone"
	TypeGas         Type = "gas"
	TypeOther       Type = "other"
)

var billTypes = map[Type]struct{}{
	TypeElectricity: {},
	TypeWater:       {},
	TypeInternet:    {},
	TypePhone:       {},
	TypeGas:         {},
	TypeOther:       {},
}

// Status is the lifecycle state of a bill.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Domain errors
var (
	ErrBillNotFound    = errors.New("bill not found")
	ErrForbidden       = errors.New("access forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrBillAlreadyPaid = errors.New("bill already paid")
)

// Bill represents a payable obligation owned by a user.
type Bill struct {
	ID                string       `json:"id"`
	UserID            int64        `json:"user_id"`
	Type              Type         `json:"bill_type"`
	ProviderName      string       `json:"provider_name"`
	AccountNumber     string       `json:"account_number"`
	Amount            money.Amount `json:"amount"`
	DueDate           time.Time    `json:"due_date"`
	Status            Status       `json:"status"`
	PaidAt            *time.Time   `json:"paid_at"`
	PaidFromAccountID *string      `json:"paid_from_account_id"`
	TransactionID     *string      `json:"transaction_id"`
	CreatedAt         time.Time    `json:"created_at"`
}

// IsPaid reports whether the bill has been settled.
func (b *Bill) IsPaid() bool {
	return b.Status == StatusPaid
}

// EffectiveStatus derives the status a reader should see. Overdue is never
// stored: a pending bill whose due date has passed reads as overdue.
func EffectiveStatus(stored Status, due, now time.Time) Status {
	if stored == StatusPending && now.After(due) {
		return StatusOverdue
	}
	return stored
}

// WithEffectiveStatus returns a copy of b with its status derived at now.
func (b *Bill) WithEffectiveStatus(now time.Time) *Bill {
	out := *b
	out.Status = EffectiveStatus(b.Status, b.DueDate, now)
	return &out
}

// ParseType validates a bill type from user input.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := billTypes[t]; !ok {
		return "", fmt.Errorf("%w: unknown bill type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// CreateParams contains parameters for creating a new bill
type CreateParams struct {
	ID            string
	UserID        int64
	Type          Type
	ProviderName  string
	AccountNumber string
	Amount        money.Amount
	DueDate       time.Time
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: bill ID is required", ErrInvalidInput)
	}
	if p.UserID <= 0 {
		return fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}
	if _, ok := billTypes[p.Type]; !ok {
		return fmt.Errorf("%w: unknown bill type %q", ErrInvalidInput, p.Type)
	}
	if strings.TrimSpace(p.ProviderName) == "" {
		return fmt.Errorf("%w: provider name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.AccountNumber) == "" {
		return fmt.Errorf("%w: provider account number is required", ErrInvalidInput)
	}
	if p.DueDate.IsZero() {
		return fmt.Errorf("%w: due date is required", ErrInvalidInput)
	}
	return p.Amount.RequirePositive()
}

// MarkPaidParams links a bill to its settling transaction.
type MarkPaidParams struct {
	BillID        string
	TransactionID string
	AccountID     string
	PaidAt        time.Time
}
