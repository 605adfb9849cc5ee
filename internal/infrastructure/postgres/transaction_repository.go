package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain/transaction"
)

const transactionColumns = `id, account_id, transaction_type, amount, description, recipient_account, balance_after, created_at, seq`

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var (
		tx        transaction.Transaction
		recipient sql.NullString
	)
	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.Description,
		&recipient, &tx.BalanceAfter, &tx.CreatedAt, &tx.Sequence,
	)
	if err != nil {
		return nil, err
	}
	if recipient.Valid {
		tx.RecipientAccount = &recipient.String
	}
	return &tx, nil
}

// ListByAccountID returns a page of the account's records, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`
	return queryTransactions(ctx, r.db, query, accountID, limit, offset)
}

// History returns every record of the account in insertion order
func (r *TransactionRepository) History(ctx context.Context, accountID string) ([]*transaction.Transaction, error) {
	return history(ctx, r.db, accountID)
}

func history(ctx context.Context, q querier, accountID string) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 ORDER BY seq`
	return queryTransactions(ctx, q, query, accountID)
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if isInvalidTextInput(err) {
		return []*transaction.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*transaction.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}
