// Package ledger applies balance-changing operations atomically. Every
// mutation of an account balance is paired with exactly one transaction
// record whose balance_after equals the post-mutation balance.
package ledger

import (
	"context"
	"errors"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

// Domain errors
var (
	ErrRecipientNotFound = errors.New("recipient account not found")
	ErrSelfTransfer      = errors.New("cannot transfer to the same account")
	ErrInvalidRecipient  = errors.New("invalid recipient account number")
)

// Store runs a unit of work. Either every write made through tx becomes
// visible or none does. Locks taken through tx are held until fn returns.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work.
//
// Lock ordering: a unit of work locks its bill (if any) before any account,
// and LockAccounts acquires account locks in ascending id order. A unit of
// work calls LockAccounts at most once.
type Tx interface {
	// FindAccount reads an account without locking it.
	FindAccount(ctx context.Context, id string) (*account.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*account.Account, error)

	// LockAccounts locks the given accounts exclusively for the rest of the
	// unit of work and returns their current state keyed by id.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*account.Account, error)

	// ApplyDelta adds delta to a locked account's balance and returns the new
	// balance. It fails with account.ErrInsufficientFunds if the result would
	// be negative.
	ApplyDelta(ctx context.Context, accountID string, delta money.Amount) (money.Amount, error)

	AppendTransaction(ctx context.Context, params transaction.AppendParams) (*transaction.Transaction, error)

	// History returns the account's records in the order they were written.
	History(ctx context.Context, accountID string) ([]*transaction.Transaction, error)

	LockBill(ctx context.Context, id string) (*bill.Bill, error)
	MarkBillPaid(ctx context.Context, params bill.MarkPaidParams) (*bill.Bill, error)

	Enqueue(ctx context.Context, events ...*event.Event) error
}
