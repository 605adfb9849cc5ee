package transaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/shared/money"
)

// Type is the kind of balance-affecting event a transaction records.
type Type string

const (
	TypeDeposit     Type = "deposit"
	TypeWithdrawal  Type = "withdrawal"
	TypeTransfer    Type = "transfer"
	TypeBillPayment Type = "bill_payment"
)

var ErrInvalidType = errors.New("invalid transaction type")

// ParseType converts the wire value into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypeBillPayment:
		return true
	}
	return false
}

// Credit reports whether the type increases the account balance.
// Incoming transfers are recorded as deposits on the recipient.
func (t Type) Credit() bool {
	return t == TypeDeposit
}

// DefaultDescription is used when the caller supplies none.
func (t Type) DefaultDescription() string {
	switch t {
	case TypeDeposit:
		return "Deposit"
	case TypeWithdrawal:
		return "Withdrawal"
	case TypeTransfer:
		return "Transfer"
	case TypeBillPayment:
		return "Bill payment"
	}
	return string(t)
}

// Transaction is an immutable record of one balance change.
type Transaction struct {
	ID               string       `json:"id"`
	AccountID        string       `json:"account_id"`
	Type             Type         `json:"transaction_type"`
	Amount           money.Amount `json:"amount"`
	Description      string       `json:"description"`
	RecipientAccount *string      `json:"recipient_account"`
	BalanceAfter     money.Amount `json:"balance_after"`
	CreatedAt        time.Time    `json:"created_at"`

	// Sequence orders records of the same account; it is assigned on insert.
	Sequence int64 `json:"-"`
}

// SignedAmount is the balance change this record represents.
func (t *Transaction) SignedAmount() money.Amount {
	if t.Type.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// AppendParams contains the fields of a new log record.
type AppendParams struct {
	ID               string
	AccountID        string
	Type             Type
	Amount           money.Amount
	Description      string
	RecipientAccount *string
	BalanceAfter     money.Amount
}

// Validate checks the record invariants before it is written.
func (p AppendParams) Validate() error {
	if p.ID == "" {
		return errors.New("transaction ID is required")
	}
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
	if err := p.Amount.RequirePositive(); err != nil {
		return err
	}
	if p.BalanceAfter.IsNegative() {
		return errors.New("balance after must not be negative")
	}
	if (p.Type == TypeTransfer) != (p.RecipientAccount != nil) {
		return errors.New("recipient account is required for transfers and only for transfers")
	}
	return nil
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NormalizePage clamps limit and offset to sane values.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
