package transaction

import (
	"context"

	"ledger/internal/domain/account"
)

// Service exposes the transaction log to account owners.
type Service struct {
	repo     Repository
	accounts account.Repository
}

// NewService creates a new transaction service
func NewService(repo Repository, accounts account.Repository) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// ListByAccount returns a page of the account's history, newest first,
// after verifying that userID owns the account.
func (s *Service) ListByAccount(ctx context.Context, userID int64, accountID string, limit, offset int) ([]*Transaction, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.UserID != userID {
		return nil, account.ErrForbidden
	}

	limit, offset = NormalizePage(limit, offset)
	return s.repo.ListByAccountID(ctx, accountID, limit, offset)
}
