package transaction

import "context"

// Repository defines read access to the transaction log.
// Records are written only by the ledger engine inside its atomic unit.
type Repository interface {
	// ListByAccountID returns records newest first.
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)

	// History returns every record of the account in the order it was written.
	History(ctx context.Context, accountID string) ([]*Transaction, error)
}
