package bill

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/shared/money"
)

// Service implements the bill registry.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new bill service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetClock overrides the time source used for the overdue derivation.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateBillInput is the caller-facing shape of a new bill.
type CreateBillInput struct {
	Type          Type
	ProviderName  string
	AccountNumber string
	Amount        money.Amount
	DueDate       time.Time
}

// CreateBill registers a new pending bill for userID.
func (s *Service) CreateBill(ctx context.Context, userID int64, in CreateBillInput) (*Bill, error) {
	params := CreateParams{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          in.Type,
		ProviderName:  strings.TrimSpace(in.ProviderName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		Amount:        in.Amount,
		DueDate:       in.DueDate,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return b.WithEffectiveStatus(s.now()), nil
}

// ListBills returns the user's bills with read-time overdue status.
func (s *Service) ListBills(ctx context.Context, userID int64) ([]*Bill, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	bills, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]*Bill, len(bills))
	for i, b := range bills {
		out[i] = b.WithEffectiveStatus(now)
	}
	return out, nil
}

// GetBill returns a single bill owned by userID.
func (s *Service) GetBill(ctx context.Context, userID int64, billID string) (*Bill, error) {
	b, err := s.repo.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrForbidden
	}
	return b.WithEffectiveStatus(s.now()), nil
}

// DeleteBill removes a pending or overdue bill. Paid bills are kept.
func (s *Service) DeleteBill(ctx context.Context, userID int64, billID string) error {
	b, err := s.repo.GetByID(ctx, billID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return ErrForbidden
	}
	if b.IsPaid() {
		return ErrBillAlreadyPaid
	}

	if err := s.repo.DeleteUnpaid(ctx, billID); err != nil {
		if errors.Is(err, ErrBillAlreadyPaid) {
			// paid concurrently between the read and the delete
			return ErrBillAlreadyPaid
		}
		return err
	}
	return nil
}
