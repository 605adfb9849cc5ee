package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger/internal/domain/bill"
)

const billColumns = `id, user_id, bill_type, provider_name, account_number, amount, due_date, status,
	paid_at, paid_from_account_id, transaction_id, created_at`

// BillRepository implements bill.Repository for PostgreSQL
type BillRepository struct {
	db *DB
}

// NewBillRepository creates a new PostgreSQL bill repository
func NewBillRepository(db *DB) *BillRepository {
	return &BillRepository{db: db}
}

func scanBill(row rowScanner) (*bill.Bill, error) {
	var (
		b              bill.Bill
		paidAt         sql.NullTime
		paidFrom, txID sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.Type, &b.ProviderName, &b.AccountNumber, &b.Amount,
		&b.DueDate, &b.Status, &paidAt, &paidFrom, &txID, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		b.PaidAt = &paidAt.Time
	}
	if paidFrom.Valid {
		b.PaidFromAccountID = &paidFrom.String
	}
	if txID.Valid {
		b.TransactionID = &txID.String
	}
	return &b, nil
}

// Create inserts a pending bill
func (r *BillRepository) Create(ctx context.Context, params bill.CreateParams) (*bill.Bill, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO bills (id, user_id, bill_type, provider_name, account_number, amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING ` + billColumns

	b, err := scanBill(r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.Type, params.ProviderName,
		params.AccountNumber, params.Amount, params.DueDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}
	return b, nil
}

// GetByID retrieves a bill by its ID
func (r *BillRepository) GetByID(ctx context.Context, id string) (*bill.Bill, error) {
	return getBill(ctx, r.db, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
}

func getBill(ctx context.Context, q querier, query string, id string) (*bill.Bill, error) {
	b, err := scanBill(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) || isInvalidTextInput(err) {
		return nil, bill.ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

// ListByUserID returns the user's bills ordered by due date
func (r *BillRepository) ListByUserID(ctx context.Context, userID int64) ([]*bill.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE user_id = $1 ORDER BY due_date ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	bills := []*bill.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}
	return bills, nil
}

// DeleteUnpaid deletes the bill only while it is not paid. The status
// predicate makes the check and the delete a single statement.
func (r *BillRepository) DeleteUnpaid(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bills WHERE id = $1 AND status <> 'paid'`, id)
	if isInvalidTextInput(err) {
		return bill.ErrBillNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return bill.ErrBillAlreadyPaid
}
