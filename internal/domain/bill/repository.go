package bill

import (
	"context"
)

// Repository defines the interface for bill data access.
// Marking a bill paid happens only inside a ledger unit of work.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Bill, error)
	GetByID(ctx context.Context, id string) (*Bill, error)
	// ListByUserID returns the user's bills ordered by due date ascending.
	ListByUserID(ctx context.Context, userID int64) ([]*Bill, error)
	// DeleteUnpaid removes the bill unless it is paid, in which case it
	// returns ErrBillAlreadyPaid.
	DeleteUnpaid(ctx context.Context, id string) error
}
