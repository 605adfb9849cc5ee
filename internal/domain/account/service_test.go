package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/shared/money"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	CreateFunc             func(ctx context.Context, params CreateParams) (*Account, error)
	GetByIDFunc            func(ctx context.Context, id string) (*Account, error)
	GetByAccountNumberFunc func(ctx context.Context, number string) (*Account, error)
	ListByUserIDFunc       func(ctx context.Context, userID int64) ([]*Account, error)
	ListIDsFunc            func(ctx context.Context) ([]string, error)
}

func (m *MockRepository) Create(ctx context.Context, params CreateParams) (*Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrAccountNotFound
}

func (m *MockRepository) GetByAccountNumber(ctx context.Context, number string) (*Account, error) {
	if m.GetByAccountNumberFunc != nil {
		return m.GetByAccountNumberFunc(ctx, number)
	}
	return nil, ErrAccountNotFound
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID int64) ([]*Account, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) ListIDs(ctx context.Context) ([]string, error) {
	if m.ListIDsFunc != nil {
		return m.ListIDsFunc(ctx)
	}
	return nil, nil
}

func createdAccount(params CreateParams) *Account {
	return &Account{
		ID:            params.ID,
		UserID:        params.UserID,
		AccountNumber: params.AccountNumber,
		Name:          params.Name,
		Balance:       money.Zero(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// sequence returns a generator that yields the given numbers in order.
func sequence(numbers ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(numbers) {
			return "", errors.New("sequence exhausted")
		}
		n := numbers[i]
		i++
		return n, nil
	}
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     int64
		accName    string
		numbers    []string
		mock       func() *MockRepository
		wantErr    bool
		errType    error
		wantNumber string
	}{
		{
			name:    "Success",
			userID:  1,
			accName: "Main Account",
			numbers: []string{"1000000001"},
			mock: func() *MockRepository {
				return &MockRepository{
					CreateFunc: func(ctx context.Context, params CreateParams) (*Account, error) {
						return createdAccount(params), nil
					},
				}
			},
			wantNumber: "1000000001",
		},
		{
			name:    "Name Too Short",
			userID:  1,
			accName: " a ",
			mock: func() *MockRepository {
				return &MockRepository{}
			},
			wantErr: true,
			errType: ErrInvalidInput,
		},
		{
			name:    "Retries On Existing Number",
			userID:  1,
			accName: "Savings",
			numbers: []string{"1111111111", "2222222222"},
			mock: func() *MockRepository {
				return &MockRepository{
					GetByAccountNumberFunc: func(ctx context.Context, number string) (*Account, error) {
						if number == "1111111111" {
							return &Account{ID: "other", AccountNumber: number}, nil
						}
						return nil, ErrAccountNotFound
					},
					CreateFunc: func(ctx context.Context, params CreateParams) (*Account, error) {
						return createdAccount(params), nil
					},
				}
			},
			wantNumber: "2222222222",
		},
		{
			name:    "Retries On Unique Violation",
			userID:  1,
			accName: "Savings",
			numbers: []string{"3333333333", "4444444444"},
			mock: func() *MockRepository {
				return &MockRepository{
					CreateFunc: func(ctx context.Context, params CreateParams) (*Account, error) {
						if params.AccountNumber == "3333333333" {
							return nil, ErrAccountNumberTaken
						}
						return createdAccount(params), nil
					},
				}
			},
			wantNumber: "4444444444",
		},
		{
			name:    "Repository Error",
			userID:  1,
			accName: "Main",
			numbers: []string{"5555555555"},
			mock: func() *MockRepository {
				return &MockRepository{
					CreateFunc: func(ctx context.Context, params CreateParams) (*Account, error) {
						return nil, errors.New("db error")
					},
				}
			},
			wantErr: true,
		},
		{
			name:    "Lookup Error",
			userID:  1,
			accName: "Main",
			numbers: []string{"5555555555"},
			mock: func() *MockRepository {
				return &MockRepository{
					GetByAccountNumberFunc: func(ctx context.Context, number string) (*Account, error) {
						return nil, errors.New("db error")
					},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := tt.mock()
			service := NewService(repo)
			service.SetNumberGenerator(sequence(tt.numbers...))

			acc, err := service.CreateAccount(ctx, tt.userID, tt.accName)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("CreateAccount() expected error, got nil")
				}
				if tt.errType != nil && !errors.Is(err, tt.errType) {
					t.Errorf("CreateAccount() expected error type %v, got %v", tt.errType, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateAccount() unexpected error: %v", err)
			}
			if acc.AccountNumber != tt.wantNumber {
				t.Errorf("CreateAccount() number = %s, want %s", acc.AccountNumber, tt.wantNumber)
			}
			if !acc.Balance.IsZero() {
				t.Errorf("CreateAccount() balance = %s, want 0.00", acc.Balance)
			}
			if acc.ID == "" {
				t.Error("CreateAccount() returned empty ID")
			}
		})
	}
}

func TestCreateAccount_ExhaustsAttempts(t *testing.T) {
	repo := &MockRepository{
		GetByAccountNumberFunc: func(ctx context.Context, number string) (*Account, error) {
			return &Account{ID: "taken", AccountNumber: number}, nil
		},
	}
	service := NewService(repo)
	calls := 0
	service.SetNumberGenerator(func() (string, error) {
		calls++
		return "9999999999", nil
	})

	_, err := service.CreateAccount(context.Background(), 1, "Main")
	if err == nil {
		t.Fatal("CreateAccount() expected error when every number is taken")
	}
	if calls != maxNumberAttempts {
		t.Errorf("generator called %d times, want %d", calls, maxNumberAttempts)
	}
}

func TestGetAccount(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		accountID string
		userID    int64
		mock      func() *MockRepository
		wantErr   bool
		errType   error
	}{
		{
			name:      "Success",
			accountID: "acc-123",
			userID:    1,
			mock: func() *MockRepository {
				return &MockRepository{
					GetByIDFunc: func(ctx context.Context, id string) (*Account, error) {
						return &Account{ID: id, UserID: 1}, nil
					},
				}
			},
		},
		{
			name:      "Not Found",
			accountID: "acc-999",
			userID:    1,
			mock: func() *MockRepository {
				return &MockRepository{}
			},
			wantErr: true,
			errType: ErrAccountNotFound,
		},
		{
			name:      "Forbidden",
			accountID: "acc-123",
			userID:    2,
			mock: func() *MockRepository {
				return &MockRepository{
					GetByIDFunc: func(ctx context.Context, id string) (*Account, error) {
						return &Account{ID: id, UserID: 1}, nil
					},
				}
			},
			wantErr: true,
			errType: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(tt.mock())

			acc, err := service.GetAccount(ctx, tt.accountID, tt.userID)

			if tt.wantErr {
				if !errors.Is(err, tt.errType) {
					t.Errorf("GetAccount() error = %v, want %v", err, tt.errType)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetAccount() unexpected error: %v", err)
			}
			if acc.ID != tt.accountID {
				t.Errorf("GetAccount() ID = %s, want %s", acc.ID, tt.accountID)
			}
		})
	}
}

func TestListAccountsByUserID(t *testing.T) {
	repo := &MockRepository{
		ListByUserIDFunc: func(ctx context.Context, userID int64) ([]*Account, error) {
			return []*Account{{ID: "a", UserID: userID}, {ID: "b", UserID: userID}}, nil
		},
	}
	service := NewService(repo)

	accounts, err := service.ListAccountsByUserID(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListAccountsByUserID() unexpected error: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("ListAccountsByUserID() returned %d accounts, want 2", len(accounts))
	}

	if _, err := service.ListAccountsByUserID(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ListAccountsByUserID(0) error = %v, want ErrInvalidInput", err)
	}
}
