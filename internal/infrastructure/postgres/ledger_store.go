package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

// LedgerStore implements ledger.Store on PostgreSQL. Each unit of work is a
// READ COMMITTED transaction; row locks come from SELECT ... FOR UPDATE.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new PostgreSQL ledger store
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithinTx runs fn in a database transaction, committing only if fn succeeds.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.db.InTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, newLedgerTx(tx))
	})
}

type ledgerTx struct {
	q      querier
	locked bool

	// balances as of the row locks, advanced by ApplyDelta
	balances map[string]money.Amount
}

func newLedgerTx(q querier) *ledgerTx {
	return &ledgerTx{q: q, balances: make(map[string]money.Amount)}
}

func (t *ledgerTx) FindAccount(ctx context.Context, id string) (*account.Account, error) {
	return getAccount(ctx, t.q, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (t *ledgerTx) FindAccountByNumber(ctx context.Context, number string) (*account.Account, error) {
	return getAccount(ctx, t.q, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
}

// LockAccounts takes row locks one statement at a time in ascending id order
// so that two units of work touching the same pair cannot deadlock.
func (t *ledgerTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*account.Account, error) {
	if t.locked {
		return nil, errors.New("accounts already locked in this unit of work")
	}
	t.locked = true

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]*account.Account, len(sorted))
	for _, id := range sorted {
		if _, seen := out[id]; seen {
			continue
		}
		acc, err := getAccount(ctx, t.q, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return nil, err
		}
		out[id] = acc
		t.balances[id] = acc.Balance
	}
	return out, nil
}

// ApplyDelta relies on the WHERE clause for the non-negative check; the upper
// bound is checked against the locked balance before the statement runs.
func (t *ledgerTx) ApplyDelta(ctx context.Context, accountID string, delta money.Amount) (money.Amount, error) {
	if current, ok := t.balances[accountID]; ok && current.Add(delta).ExceedsMax() {
		return money.Amount{}, fmt.Errorf("%w: balance would exceed %s", money.ErrInvalidAmount, money.Max)
	}

	query := `
		UPDATE accounts
		SET balance = balance + $2::numeric, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND balance + $2::numeric >= 0
		RETURNING balance
	`
	var balance money.Amount
	err := t.q.QueryRowContext(ctx, query, accountID, delta).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return money.Amount{}, account.ErrInsufficientFunds
	}
	if isNumericOverflow(err) {
		return money.Amount{}, fmt.Errorf("%w: balance would exceed %s", money.ErrInvalidAmount, money.Max)
	}
	if err != nil {
		return money.Amount{}, fmt.Errorf("failed to update balance: %w", err)
	}
	t.balances[accountID] = balance
	return balance, nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, params transaction.AppendParams) (*transaction.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO transactions (id, account_id, transaction_type, amount, description, recipient_account, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + transactionColumns

	var recipient sql.NullString
	if params.RecipientAccount != nil {
		recipient = sql.NullString{String: *params.RecipientAccount, Valid: true}
	}

	tx, err := scanTransaction(t.q.QueryRowContext(ctx, query,
		params.ID, params.AccountID, params.Type, params.Amount,
		params.Description, recipient, params.BalanceAfter,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx, nil
}

func (t *ledgerTx) History(ctx context.Context, accountID string) ([]*transaction.Transaction, error) {
	return history(ctx, t.q, accountID)
}

func (t *ledgerTx) LockBill(ctx context.Context, id string) (*bill.Bill, error) {
	if t.locked {
		return nil, errors.New("bills must be locked before accounts")
	}
	return getBill(ctx, t.q, `SELECT `+billColumns+` FROM bills WHERE id = $1 FOR UPDATE`, id)
}

func (t *ledgerTx) MarkBillPaid(ctx context.Context, params bill.MarkPaidParams) (*bill.Bill, error) {
	query := `
		UPDATE bills
		SET status = 'paid', paid_at = $2, paid_from_account_id = $3, transaction_id = $4
		WHERE id = $1 AND status <> 'paid'
		RETURNING ` + billColumns

	b, err := scanBill(t.q.QueryRowContext(ctx, query,
		params.BillID, params.PaidAt, params.AccountID, params.TransactionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bill.ErrBillAlreadyPaid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark bill paid: %w", err)
	}
	return b, nil
}

func (t *ledgerTx) Enqueue(ctx context.Context, events ...*event.Event) error {
	query := `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, event_key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, e := range events {
		_, err := t.q.ExecContext(ctx, query,
			e.ID, e.AggregateType, e.AggregateID, e.Type, e.Key, string(e.Payload), e.Status, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue event: %w", err)
		}
	}
	return nil
}
