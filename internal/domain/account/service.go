package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxNumberAttempts bounds the retries when a generated number collides.
const maxNumberAttempts = 10

// Service contains the business logic for account operations
type Service struct {
	repo           Repository
	generateNumber func() (string, error)
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, generateNumber: GenerateNumber}
}

// SetNumberGenerator replaces the account number source.
func (s *Service) SetNumberGenerator(fn func() (string, error)) {
	s.generateNumber = fn
}

// CreateAccount opens a new zero-balance account for userID with a unique number.
func (s *Service) CreateAccount(ctx context.Context, userID int64, name string) (*Account, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := s.generateNumber()
		if err != nil {
			return nil, fmt.Errorf("failed to generate account number: %w", err)
		}

		// Cheap pre-check; the unique index still decides under a race.
		_, err = s.repo.GetByAccountNumber(ctx, number)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}

		params := CreateParams{
			ID:            uuid.NewString(),
			UserID:        userID,
			AccountNumber: number,
			Name:          name,
		}
		if err := params.Validate(); err != nil {
			return nil, err
		}

		acc, err := s.repo.Create(ctx, params)
		if errors.Is(err, ErrAccountNumberTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return acc, nil
	}

	return nil, fmt.Errorf("failed to allocate a unique account number after %d attempts", maxNumberAttempts)
}

// GetAccount retrieves an account by ID and verifies user ownership
func (s *Service) GetAccount(ctx context.Context, accountID string, userID int64) (*Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Business rule: verify ownership
	if account.UserID != userID {
		return nil, ErrForbidden
	}

	return account, nil
}

// ListAccountsByUserID retrieves all accounts for a specific user
func (s *Service) ListAccountsByUserID(ctx context.Context, userID int64) ([]*Account, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: valid user ID is required", ErrInvalidInput)
	}

	return s.repo.ListByUserID(ctx, userID)
}

// ListAccountIDs returns every account ID, for operational audits.
func (s *Service) ListAccountIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListIDs(ctx)
}
