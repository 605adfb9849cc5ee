package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

func createAccount(t *testing.T, s *Store, id, number string) *account.Account {
	t.Helper()
	acc, err := s.Accounts().Create(context.Background(), account.CreateParams{
		ID: id, UserID: 1, AccountNumber: number, Name: "Main",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return acc
}

func TestAccountNumberUnique(t *testing.T) {
	s := NewStore()
	createAccount(t, s, "a", "1000000000")

	_, err := s.Accounts().Create(context.Background(), account.CreateParams{
		ID: "b", UserID: 2, AccountNumber: "1000000000", Name: "Other",
	})
	if !errors.Is(err, account.ErrAccountNumberTaken) {
		t.Errorf("expected ErrAccountNumberTaken, got %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	createAccount(t, s, "a", "1000000000")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.LockAccounts(ctx, "a"); err != nil {
			return err
		}
		bal, err := tx.ApplyDelta(ctx, "a", money.MustParse("10.00"))
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, transaction.AppendParams{
			ID: "t1", AccountID: "a", Type: transaction.TypeDeposit,
			Amount: money.MustParse("10.00"), BalanceAfter: bal,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	acc, _ := s.Accounts().GetByID(ctx, "a")
	if !acc.Balance.IsZero() {
		t.Errorf("balance = %s, want 0.00", acc.Balance)
	}
	history, _ := s.Transactions().History(ctx, "a")
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}

	// locks were released
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			_, err := tx.LockAccounts(ctx, "a")
			return err
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("relock failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not released")
	}
}

func TestApplyDeltaRules(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	createAccount(t, s, "a", "1000000000")

	err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.ApplyDelta(ctx, "a", money.MustParse("1.00")); !errors.Is(err, errNotLocked) {
			t.Errorf("unlocked delta: expected errNotLocked, got %v", err)
		}
		if _, err := tx.LockAccounts(ctx, "a"); err != nil {
			return err
		}
		if _, err := tx.ApplyDelta(ctx, "a", money.MustParse("-0.01")); !errors.Is(err, account.ErrInsufficientFunds) {
			t.Errorf("negative result: expected ErrInsufficientFunds, got %v", err)
		}
		if _, err := tx.LockAccounts(ctx, "a"); err == nil {
			t.Error("second LockAccounts call should fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
}

func TestApplyDeltaUpperBound(t *testing.T) {
	tests := []struct {
		name    string
		opening money.Amount
		delta   money.Amount
		want    string
		wantErr error
	}{
		{"reaches max", money.Zero(), money.Max, money.Max.String(), nil},
		{"one cent past max", money.Max, money.FromCents(1), money.Max.String(), money.ErrInvalidAmount},
		{"large delta past max", money.MustParse("1.00"), money.Max, "1.00", money.ErrInvalidAmount},
		{"withdraw from max", money.Max, money.MustParse("-0.99"), "9999999999999999.00", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore()
			createAccount(t, s, "a", "1000000000")
			s.accounts["a"].Balance = tt.opening

			err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
				if _, err := tx.LockAccounts(ctx, "a"); err != nil {
					return err
				}
				_, err := tx.ApplyDelta(ctx, "a", tt.delta)
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WithinTx() error = %v, want %v", err, tt.wantErr)
			}

			acc, _ := s.Accounts().GetByID(ctx, "a")
			if acc.Balance.String() != tt.want {
				t.Errorf("balance = %s, want %s", acc.Balance, tt.want)
			}
		})
	}
}

func TestKeyedMutexDropsIdleSlots(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	for _, key := range []string{billKey("b1"), billKey("b2"), accountKey("a")} {
		if err := k.Lock(ctx, key); err != nil {
			t.Fatal(err)
		}
		k.Unlock(key)
	}
	if n := k.size(); n != 0 {
		t.Errorf("slots after unlock = %d, want 0", n)
	}

	if err := k.Lock(ctx, billKey("b1")); err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := k.Lock(waitCtx, billKey("b1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock() error = %v, want deadline exceeded", err)
	}
	if n := k.size(); n != 1 {
		t.Errorf("slots while held = %d, want 1", n)
	}

	acquired := make(chan struct{})
	go func() {
		if err := k.Lock(ctx, billKey("b1")); err == nil {
			close(acquired)
			k.Unlock(billKey("b1"))
		}
	}()
	k.Unlock(billKey("b1"))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
	deadline := time.Now().Add(time.Second)
	for k.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := k.size(); n != 0 {
		t.Errorf("slots after all unlocks = %d, want 0", n)
	}
}

func TestLockHonoursContext(t *testing.T) {
	s := NewStore()
	createAccount(t, s, "a", "1000000000")

	if err := s.locks.Lock(context.Background(), accountKey("a")); err != nil {
		t.Fatal(err)
	}
	defer s.locks.Unlock(accountKey("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.LockAccounts(ctx, "a")
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestListByAccountIDNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	createAccount(t, s, "a", "1000000000")

	balance := money.Zero()
	for i, id := range []string{"t1", "t2", "t3", "t4"} {
		amount := money.FromCents(int64(100 * (i + 1)))
		balance = balance.Add(amount)
		after := balance
		err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if _, err := tx.LockAccounts(ctx, "a"); err != nil {
				return err
			}
			if _, err := tx.ApplyDelta(ctx, "a", amount); err != nil {
				return err
			}
			_, err := tx.AppendTransaction(ctx, transaction.AppendParams{
				ID: id, AccountID: "a", Type: transaction.TypeDeposit, Amount: amount, BalanceAfter: after,
			})
			return err
		})
		if err != nil {
			t.Fatalf("WithinTx() error = %v", err)
		}
	}

	page, err := s.Transactions().ListByAccountID(ctx, "a", 2, 1)
	if err != nil {
		t.Fatalf("ListByAccountID() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != "t3" || page[1].ID != "t2" {
		t.Errorf("unexpected page: %v, %v", page[0].ID, page[1].ID)
	}
	if page[0].Sequence <= page[1].Sequence {
		t.Error("sequence must increase with insertion order")
	}

	empty, _ := s.Transactions().ListByAccountID(ctx, "a", 10, 10)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil page, got %v", empty)
	}
}

func TestBillsSortedAndDeletion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Bills()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"late", "early"} {
		_, err := repo.Create(ctx, bill.CreateParams{
			ID: id, UserID: 1, Type: bill.TypePhone, ProviderName: "Tel",
			AccountNumber: "P-1", Amount: money.MustParse("9.99"),
			DueDate: base.AddDate(0, 0, 10-i*5),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	bills, _ := repo.ListByUserID(ctx, 1)
	if len(bills) != 2 || bills[0].ID != "early" {
		t.Errorf("bills not sorted by due date: %v", bills)
	}

	if err := repo.DeleteUnpaid(ctx, "early"); err != nil {
		t.Errorf("DeleteUnpaid() error = %v", err)
	}
	if err := repo.DeleteUnpaid(ctx, "early"); !errors.Is(err, bill.ErrBillNotFound) {
		t.Errorf("expected ErrBillNotFound, got %v", err)
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("deleted bill left %d lock slots behind", n)
	}
}

func TestProcessPendingStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Enqueue(ctx,
			&event.Event{ID: "e1", Status: event.StatusPending},
			&event.Event{ID: "e2", Status: event.StatusPending},
			&event.Event{ID: "e3", Status: event.StatusPending},
		)
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	failing := errors.New("broker down")
	var seen []string
	handler := func(ctx context.Context, e *event.Event) error {
		seen = append(seen, e.ID)
		if e.ID == "e2" {
			return failing
		}
		return nil
	}

	batch, err := s.Events().ProcessPending(ctx, 10, 2, handler)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if batch.Claimed != 3 || batch.Sent != 1 || batch.Failed != 1 {
		t.Errorf("unexpected batch: %+v", batch)
	}
	if len(seen) != 2 {
		t.Errorf("handler saw %v, processing should stop at e2", seen)
	}

	// second failure exhausts attempts and unblocks e3
	seen = nil
	if _, err := s.Events().ProcessPending(ctx, 10, 2, handler); err != nil {
		t.Fatal(err)
	}
	seen = nil
	batch, _ = s.Events().ProcessPending(ctx, 10, 2, handler)
	if batch.Sent != 1 || len(seen) != 1 || seen[0] != "e3" {
		t.Errorf("expected only e3 to be delivered, batch=%+v seen=%v", batch, seen)
	}

	counts, _ := s.Events().CountByStatus(ctx)
	if counts[event.StatusSent] != 2 || counts[event.StatusFailed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
