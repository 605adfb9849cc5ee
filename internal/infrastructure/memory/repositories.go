package memory

import (
	"context"
	"sort"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

// AccountRepository implements account.Repository.
type AccountRepository struct{ s *Store }

func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byNumber[params.AccountNumber]; taken {
		return nil, account.ErrAccountNumberTaken
	}
	now := r.s.now()
	acc := &account.Account{
		ID:            params.ID,
		UserID:        params.UserID,
		AccountNumber: params.AccountNumber,
		Name:          params.Name,
		Balance:       money.Zero(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.s.accounts[acc.ID] = acc
	r.s.byNumber[acc.AccountNumber] = acc.ID
	return copyAccount(acc), nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, number string) (*account.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byNumber[number]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return copyAccount(r.s.accounts[id]), nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*account.Account
	for _, acc := range r.s.accounts {
		if acc.UserID == userID {
			out = append(out, copyAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *AccountRepository) ListIDs(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0, len(r.s.accounts))
	for id := range r.s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// TransactionRepository implements transaction.Repository.
type TransactionRepository struct{ s *Store }

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	log := r.s.transactions[accountID]
	out := []*transaction.Transaction{}
	for i := len(log) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyTransaction(log[i]))
	}
	return out, nil
}

func (r *TransactionRepository) History(ctx context.Context, accountID string) ([]*transaction.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.history(accountID), nil
}

// history must be called with mu held.
func (s *Store) history(accountID string) []*transaction.Transaction {
	log := s.transactions[accountID]
	out := make([]*transaction.Transaction, len(log))
	for i, t := range log {
		out[i] = copyTransaction(t)
	}
	return out
}

// BillRepository implements bill.Repository.
type BillRepository struct{ s *Store }

func (r *BillRepository) Create(ctx context.Context, params bill.CreateParams) (*bill.Bill, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b := &bill.Bill{
		ID:            params.ID,
		UserID:        params.UserID,
		Type:          params.Type,
		ProviderName:  params.ProviderName,
		AccountNumber: params.AccountNumber,
		Amount:        params.Amount,
		DueDate:       params.DueDate,
		Status:        bill.StatusPending,
		CreatedAt:     r.s.now(),
	}
	r.s.bills[b.ID] = b
	return copyBill(b), nil
}

func (r *BillRepository) GetByID(ctx context.Context, id string) (*bill.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bills[id]
	if !ok {
		return nil, bill.ErrBillNotFound
	}
	return copyBill(b), nil
}

func (r *BillRepository) ListByUserID(ctx context.Context, userID int64) ([]*bill.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*bill.Bill
	for _, b := range r.s.bills {
		if b.UserID == userID {
			out = append(out, copyBill(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteUnpaid takes the bill lock so it cannot interleave with a payment.
func (r *BillRepository) DeleteUnpaid(ctx context.Context, id string) error {
	if err := r.s.locks.Lock(ctx, billKey(id)); err != nil {
		return err
	}
	defer r.s.locks.Unlock(billKey(id))

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bills[id]
	if !ok {
		return bill.ErrBillNotFound
	}
	if b.IsPaid() {
		return bill.ErrBillAlreadyPaid
	}
	delete(r.s.bills, id)
	return nil
}

// EventRepository implements event.Repository.
type EventRepository struct{ s *Store }

func (r *EventRepository) ProcessPending(ctx context.Context, limit, maxAttempts int, fn event.Handler) (event.Batch, error) {
	r.s.outboxMu.Lock()
	defer r.s.outboxMu.Unlock()

	var batch event.Batch
	r.s.mu.RLock()
	var claimed []*event.Event
	for _, e := range r.s.events {
		if len(claimed) == limit {
			break
		}
		if e.Status == event.StatusPending {
			c := *e
			claimed = append(claimed, &c)
		}
	}
	r.s.mu.RUnlock()
	batch.Claimed = len(claimed)

	for _, e := range claimed {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		err := fn(ctx, e)

		r.s.mu.Lock()
		stored := r.s.find(e.ID)
		if err == nil {
			sentAt := r.s.now()
			stored.Status = event.StatusSent
			stored.SentAt = &sentAt
			batch.Sent++
		} else {
			stored.Attempts++
			stored.LastError = err.Error()
			if stored.Attempts >= maxAttempts {
				stored.Status = event.StatusFailed
			}
			batch.Failed++
		}
		r.s.mu.Unlock()

		if err != nil {
			break
		}
	}
	return batch, nil
}

func (r *EventRepository) CountByStatus(ctx context.Context) (map[event.Status]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[event.Status]int)
	for _, e := range r.s.events {
		counts[e.Status]++
	}
	return counts, nil
}

// find must be called with mu held.
func (s *Store) find(eventID string) *event.Event {
	for _, e := range s.events {
		if e.ID == eventID {
			return e
		}
	}
	return nil
}
