// Package event defines the ledger events written to the transactional
// outbox alongside every committed balance change.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/domain/bill"
	"ledger/internal/domain/transaction"
)

// Type identifies the kind of event.
type Type string

const (
	TypeTransactionCreated Type = "transaction.created"
	TypeBillPaid           Type = "bill.paid"
)

// Status is the delivery state of an outbox row.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const (
	AggregateAccount = "account"
	AggregateBill    = "bill"
)

var ErrEventNotFound = errors.New("event not found")

// Event is one outbox row.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          Type
	// Key partitions the event stream; events with the same key keep their order.
	Key       string
	Payload   []byte
	Status    Status
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// TransactionCreated is the payload of a transaction.created event.
type TransactionCreated struct {
	Transaction *transaction.Transaction `json:"transaction"`
	OccurredAt  time.Time                `json:"occurred_at"`
}

// BillPaid is the payload of a bill.paid event.
type BillPaid struct {
	BillID        string    `json:"bill_id"`
	UserID        int64     `json:"user_id"`
	AccountID     string    `json:"account_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
}

// NewTransactionCreated builds the event for a freshly appended record,
// keyed by the affected account.
func NewTransactionCreated(tx *transaction.Transaction, now time.Time) (*Event, error) {
	payload, err := json.Marshal(TransactionCreated{Transaction: tx, OccurredAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction event: %w", err)
	}
	return &Event{
		ID:            uuid.NewString(),
		AggregateType: AggregateAccount,
		AggregateID:   tx.AccountID,
		Type:          TypeTransactionCreated,
		Key:           tx.AccountID,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     now,
	}, nil
}

// NewBillPaid builds the event emitted when a bill is settled.
func NewBillPaid(b *bill.Bill, tx *transaction.Transaction, now time.Time) (*Event, error) {
	payload, err := json.Marshal(BillPaid{
		BillID:        b.ID,
		UserID:        b.UserID,
		AccountID:     tx.AccountID,
		TransactionID: tx.ID,
		Amount:        tx.Amount.String(),
		PaidAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bill event: %w", err)
	}
	return &Event{
		ID:            uuid.NewString(),
		AggregateType: AggregateBill,
		AggregateID:   b.ID,
		Type:          TypeBillPaid,
		Key:           tx.AccountID,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     now,
	}, nil
}
