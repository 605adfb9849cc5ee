// Package memory is an in-process storage driver with the same semantics as
// the postgres driver. It backs development runs and the ledger tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/transaction"
)

// Store holds all state. Committed data is guarded by mu; per-entity
// exclusive locks taken by units of work live in locks.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*account.Account
	byNumber     map[string]string
	transactions map[string][]*transaction.Transaction
	bills        map[string]*bill.Bill
	events       []*event.Event
	seq          int64

	locks    *keyedMutex
	outboxMu sync.Mutex
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		byNumber:     make(map[string]string),
		transactions: make(map[string][]*transaction.Transaction),
		bills:        make(map[string]*bill.Bill),
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// PingContext always succeeds.
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Accounts() *AccountRepository         { return &AccountRepository{s: s} }
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }
func (s *Store) Bills() *BillRepository               { return &BillRepository{s: s} }
func (s *Store) Events() *EventRepository             { return &EventRepository{s: s} }

// keyedMutex provides one exclusive lock per key. Waiting honours ctx.
// A slot lives only while someone holds or waits for its key.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*lockSlot)}
}

func (k *keyedMutex) acquire(key string) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (k *keyedMutex) release(key string, slot *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	slot := k.acquire(key)
	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, slot)
		return ctx.Err()
	}
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	k.mu.Unlock()
	if !ok {
		panic("memory: unlock of unlocked key " + key)
	}
	<-slot.ch
	k.release(key, slot)
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func accountKey(id string) string { return "account:" + id }
func billKey(id string) string    { return "bill:" + id }

func copyAccount(a *account.Account) *account.Account {
	c := *a
	return &c
}

func copyBill(b *bill.Bill) *bill.Bill {
	c := *b
	return &c
}

func copyTransaction(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	return &c
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
