package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create inserts a new account with a zero balance.
	// Returns ErrAccountNumberTaken if the account number is already used.
	Create(ctx context.Context, params CreateParams) (*Account, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByAccountNumber retrieves an account by its human-facing number
	GetByAccountNumber(ctx context.Context, number string) (*Account, error)

	// ListByUserID retrieves all accounts for a specific user
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)

	// ListIDs returns the IDs of every account, oldest first
	ListIDs(ctx context.Context) ([]string, error)
}
