package memory

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

var errNotLocked = errors.New("memory: entity is not locked by this unit of work")

// WithinTx implements ledger.Store. Writes are staged on the unit of work
// and applied under the store mutex only when fn succeeds. Entity locks are
// released after the commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx := &memTx{
		s:        s,
		accounts: make(map[string]bool),
		balances: make(map[string]money.Amount),
		bills:    make(map[string]*bill.Bill),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	s    *Store
	held []string

	accounts    map[string]bool
	balances    map[string]money.Amount
	appended    []*transaction.Transaction
	bills       map[string]*bill.Bill
	lockedBills map[string]bool
	events      []*event.Event
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if err := t.s.locks.Lock(ctx, key); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.Unlock(t.held[i])
	}
	t.held = nil
}

func (t *memTx) FindAccount(ctx context.Context, id string) (*account.Account, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	acc, ok := t.s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return t.view(acc), nil
}

func (t *memTx) FindAccountByNumber(ctx context.Context, number string) (*account.Account, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	id, ok := t.s.byNumber[number]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return t.view(t.s.accounts[id]), nil
}

// view returns a copy of acc with staged balance applied; mu must be held.
func (t *memTx) view(acc *account.Account) *account.Account {
	c := copyAccount(acc)
	if bal, ok := t.balances[acc.ID]; ok {
		c.Balance = bal
	}
	return c
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*account.Account, error) {
	if len(t.accounts) > 0 {
		return nil, errors.New("memory: accounts already locked in this unit of work")
	}

	ids = sortedUnique(ids)
	for _, id := range ids {
		if err := t.lock(ctx, accountKey(id)); err != nil {
			return nil, err
		}
		t.accounts[id] = true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make(map[string]*account.Account, len(ids))
	for _, id := range ids {
		acc, ok := t.s.accounts[id]
		if !ok {
			return nil, account.ErrAccountNotFound
		}
		out[id] = t.view(acc)
	}
	return out, nil
}

func (t *memTx) ApplyDelta(ctx context.Context, accountID string, delta money.Amount) (money.Amount, error) {
	if !t.accounts[accountID] {
		return money.Amount{}, fmt.Errorf("%w: account %s", errNotLocked, accountID)
	}

	current, ok := t.balances[accountID]
	if !ok {
		t.s.mu.RLock()
		acc, exists := t.s.accounts[accountID]
		if exists {
			current = acc.Balance
		}
		t.s.mu.RUnlock()
		if !exists {
			return money.Amount{}, account.ErrAccountNotFound
		}
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return money.Amount{}, account.ErrInsufficientFunds
	}
	if next.ExceedsMax() {
		return money.Amount{}, fmt.Errorf("%w: balance would exceed %s", money.ErrInvalidAmount, money.Max)
	}
	t.balances[accountID] = next
	return next, nil
}

func (t *memTx) AppendTransaction(ctx context.Context, params transaction.AppendParams) (*transaction.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !t.accounts[params.AccountID] {
		return nil, fmt.Errorf("%w: account %s", errNotLocked, params.AccountID)
	}

	rec := &transaction.Transaction{
		ID:               params.ID,
		AccountID:        params.AccountID,
		Type:             params.Type,
		Amount:           params.Amount,
		Description:      params.Description,
		RecipientAccount: params.RecipientAccount,
		BalanceAfter:     params.BalanceAfter,
		CreatedAt:        t.s.now(),
	}
	t.appended = append(t.appended, rec)
	return copyTransaction(rec), nil
}

func (t *memTx) History(ctx context.Context, accountID string) ([]*transaction.Transaction, error) {
	t.s.mu.RLock()
	out := t.s.history(accountID)
	t.s.mu.RUnlock()

	for _, rec := range t.appended {
		if rec.AccountID == accountID {
			out = append(out, copyTransaction(rec))
		}
	}
	return out, nil
}

func (t *memTx) LockBill(ctx context.Context, id string) (*bill.Bill, error) {
	if len(t.accounts) > 0 {
		return nil, errors.New("memory: bills must be locked before accounts")
	}
	if err := t.lock(ctx, billKey(id)); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bills[id]
	if !ok {
		return nil, bill.ErrBillNotFound
	}
	if t.lockedBills == nil {
		t.lockedBills = make(map[string]bool)
	}
	t.lockedBills[id] = true
	return copyBill(b), nil
}

func (t *memTx) MarkBillPaid(ctx context.Context, params bill.MarkPaidParams) (*bill.Bill, error) {
	if !t.lockedBills[params.BillID] {
		return nil, fmt.Errorf("%w: bill %s", errNotLocked, params.BillID)
	}

	t.s.mu.RLock()
	stored, ok := t.s.bills[params.BillID]
	var b *bill.Bill
	if ok {
		b = copyBill(stored)
	}
	t.s.mu.RUnlock()
	if !ok {
		return nil, bill.ErrBillNotFound
	}
	if b.IsPaid() {
		return nil, bill.ErrBillAlreadyPaid
	}

	paidAt := params.PaidAt
	accountID := params.AccountID
	txID := params.TransactionID
	b.Status = bill.StatusPaid
	b.PaidAt = &paidAt
	b.PaidFromAccountID = &accountID
	b.TransactionID = &txID
	t.bills[b.ID] = b
	return copyBill(b), nil
}

func (t *memTx) Enqueue(ctx context.Context, events ...*event.Event) error {
	for _, e := range events {
		c := *e
		t.events = append(t.events, &c)
	}
	return nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	now := t.s.now()
	for id, bal := range t.balances {
		acc := t.s.accounts[id]
		acc.Balance = bal
		acc.UpdatedAt = now
	}
	for _, rec := range t.appended {
		t.s.seq++
		rec.Sequence = t.s.seq
		t.s.transactions[rec.AccountID] = append(t.s.transactions[rec.AccountID], rec)
	}
	for id, b := range t.bills {
		t.s.bills[id] = b
	}
	t.s.events = append(t.s.events, t.events...)
}
