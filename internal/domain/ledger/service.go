package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/event"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

var (
	ledgerTracer    = otel.Tracer("ledger/engine")
	ledgerMeter     = otel.Meter("ledger/engine")
	opDuration, _   = ledgerMeter.Float64Histogram("ledger.operation.duration", metric.WithDescription("Ledger operation duration in seconds"), metric.WithUnit("s"))
	opTotal, _      = ledgerMeter.Int64Counter("ledger.operation.total", metric.WithDescription("Ledger operations by outcome"))
	opMovedCents, _ = ledgerMeter.Int64Counter("ledger.operation.amount", metric.WithDescription("Amount moved by committed operations"), metric.WithUnit("{cent}"))
)

// Service is the ledger engine.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new ledger engine backed by store.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger.Named("ledger"),
		now:    time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Deposit credits amount to an account owned by userID.
func (s *Service) Deposit(ctx context.Context, userID int64, accountID string, amount money.Amount, description string) (*transaction.Transaction, error) {
	if err := amount.RequirePositive(); err != nil {
		return nil, err
	}

	var result *transaction.Transaction
	err := s.run(ctx, "deposit", amount, func(ctx context.Context, tx Tx) error {
		acc, err := lockOwned(ctx, tx, userID, accountID)
		if err != nil {
			return err
		}
		result, err = s.post(ctx, tx, acc.ID, transaction.TypeDeposit, amount, describe(description, transaction.TypeDeposit), nil)
		return err
	}, attribute.String("account.id", accountID))
	return result, err
}

// Withdraw debits amount from an account owned by userID.
func (s *Service) Withdraw(ctx context.Context, userID int64, accountID string, amount money.Amount, description string) (*transaction.Transaction, error) {
	if err := amount.RequirePositive(); err != nil {
		return nil, err
	}

	var result *transaction.Transaction
	err := s.run(ctx, "withdraw", amount, func(ctx context.Context, tx Tx) error {
		acc, err := lockOwned(ctx, tx, userID, accountID)
		if err != nil {
			return err
		}
		if acc.Balance.LessThan(amount) {
			return account.ErrInsufficientFunds
		}
		result, err = s.post(ctx, tx, acc.ID, transaction.TypeWithdrawal, amount, describe(description, transaction.TypeWithdrawal), nil)
		return err
	}, attribute.String("account.id", accountID))
	return result, err
}

// Transfer moves amount from an account owned by userID to the account
// identified by recipientNumber. It returns the debit record.
func (s *Service) Transfer(ctx context.Context, userID int64, fromAccountID, recipientNumber string, amount money.Amount, description string) (*transaction.Transaction, error) {
	if err := amount.RequirePositive(); err != nil {
		return nil, err
	}
	recipientNumber = strings.TrimSpace(recipientNumber)
	if !account.IsValidAccountNumber(recipientNumber) {
		return nil, fmt.Errorf("%w: must be %d digits", ErrInvalidRecipient, account.NumberLength)
	}

	var result *transaction.Transaction
	err := s.run(ctx, "transfer", amount, func(ctx context.Context, tx Tx) error {
		source, err := tx.FindAccount(ctx, fromAccountID)
		if err != nil {
			return err
		}
		if source.UserID != userID {
			return account.ErrAccountNotFound
		}

		recipient, err := tx.FindAccountByNumber(ctx, recipientNumber)
		if errors.Is(err, account.ErrAccountNotFound) {
			return ErrRecipientNotFound
		}
		if err != nil {
			return err
		}
		if recipient.ID == source.ID {
			return ErrSelfTransfer
		}

		locked, err := tx.LockAccounts(ctx, source.ID, recipient.ID)
		if err != nil {
			return err
		}
		if locked[source.ID].Balance.LessThan(amount) {
			return account.ErrInsufficientFunds
		}

		number := recipient.AccountNumber
		result, err = s.post(ctx, tx, source.ID, transaction.TypeTransfer, amount, describe(description, transaction.TypeTransfer), &number)
		if err != nil {
			return err
		}
		_, err = s.post(ctx, tx, recipient.ID, transaction.TypeDeposit, amount, "Transfer from "+source.AccountNumber, nil)
		return err
	}, attribute.String("account.id", fromAccountID))
	return result, err
}

// PayBill settles a bill owned by userID from one of the user's accounts.
// The debit, the bill status change and the link to the settling record
// commit together.
func (s *Service) PayBill(ctx context.Context, userID int64, billID, fromAccountID string) (*transaction.Transaction, error) {
	var (
		result *transaction.Transaction
		amount money.Amount
	)
	err := s.run(ctx, "pay_bill", money.Zero(), func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBill(ctx, billID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return bill.ErrBillNotFound
		}
		if b.IsPaid() {
			return bill.ErrBillAlreadyPaid
		}
		amount = b.Amount

		acc, err := lockOwned(ctx, tx, userID, fromAccountID)
		if err != nil {
			return err
		}
		if acc.Balance.LessThan(b.Amount) {
			return account.ErrInsufficientFunds
		}

		desc := fmt.Sprintf("Bill payment - %s (%s)", b.ProviderName, b.Type)
		result, err = s.post(ctx, tx, acc.ID, transaction.TypeBillPayment, b.Amount, desc, nil)
		if err != nil {
			return err
		}

		paid, err := tx.MarkBillPaid(ctx, bill.MarkPaidParams{
			BillID:        b.ID,
			TransactionID: result.ID,
			AccountID:     acc.ID,
			PaidAt:        result.CreatedAt,
		})
		if err != nil {
			return err
		}
		ev, err := event.NewBillPaid(paid, result, s.now())
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, ev)
	}, attribute.String("bill.id", billID), attribute.String("account.id", fromAccountID))
	if err == nil {
		opMovedCents.Add(ctx, amount.Cents(), metric.WithAttributes(attribute.String("operation", "pay_bill")))
	}
	return result, err
}

// Reconciliation is the outcome of replaying one account's log.
type Reconciliation struct {
	AccountID       string       `json:"account_id"`
	Balance         money.Amount `json:"balance"`
	ReplayedBalance money.Amount `json:"replayed_balance"`
	Transactions    int          `json:"transactions"`
	Consistent      bool         `json:"consistent"`
	FirstMismatchID string       `json:"first_mismatch_id,omitempty"`
}

// Reconcile replays the log of an account owned by userID.
func (s *Service) Reconcile(ctx context.Context, userID int64, accountID string) (*Reconciliation, error) {
	return s.reconcile(ctx, accountID, func(acc *account.Account) error {
		if acc.UserID != userID {
			return account.ErrForbidden
		}
		return nil
	})
}

// ReconcileAccount replays the log of any account. Used by operators.
func (s *Service) ReconcileAccount(ctx context.Context, accountID string) (*Reconciliation, error) {
	return s.reconcile(ctx, accountID, func(*account.Account) error { return nil })
}

func (s *Service) reconcile(ctx context.Context, accountID string, authorize func(*account.Account) error) (*Reconciliation, error) {
	ctx, span := ledgerTracer.Start(ctx, "ledger.reconcile", trace.WithAttributes(attribute.String("account.id", accountID)))
	defer span.End()

	var rec *Reconciliation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := tx.FindAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := authorize(acc); err != nil {
			return err
		}

		// the lock keeps writers out while the history is read
		locked, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		acc = locked[accountID]

		history, err := tx.History(ctx, accountID)
		if err != nil {
			return err
		}
		replayed := transaction.Replay(history, acc.Balance)
		rec = &Reconciliation{
			AccountID:       acc.ID,
			Balance:         acc.Balance,
			ReplayedBalance: replayed.Balance,
			Transactions:    replayed.Count,
			Consistent:      replayed.Consistent,
			FirstMismatchID: replayed.FirstMismatchID,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Bool("ledger.consistent", rec.Consistent))
	if !rec.Consistent {
		s.logger.Error("Ledger replay mismatch",
			zap.String("account_id", rec.AccountID),
			zap.String("balance", rec.Balance.String()),
			zap.String("replayed_balance", rec.ReplayedBalance.String()),
			zap.String("first_mismatch_id", rec.FirstMismatchID),
		)
	}
	return rec, nil
}

// post changes the balance of a locked account and appends the matching
// record and its outbox event.
func (s *Service) post(ctx context.Context, tx Tx, accountID string, typ transaction.Type, amount money.Amount, description string, recipient *string) (*transaction.Transaction, error) {
	delta := amount
	if !typ.Credit() {
		delta = amount.Neg()
	}

	balance, err := tx.ApplyDelta(ctx, accountID, delta)
	if err != nil {
		return nil, err
	}

	rec, err := tx.AppendTransaction(ctx, transaction.AppendParams{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Type:             typ,
		Amount:           amount,
		Description:      description,
		RecipientAccount: recipient,
		BalanceAfter:     balance,
	})
	if err != nil {
		return nil, err
	}

	ev, err := event.NewTransactionCreated(rec, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Enqueue(ctx, ev); err != nil {
		return nil, err
	}
	return rec, nil
}

// run executes fn in a unit of work with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, op string, amount money.Amount, fn func(ctx context.Context, tx Tx) error, attrs ...attribute.KeyValue) error {
	ctx, span := ledgerTracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := s.store.WithinTx(ctx, fn)
	outcome := outcomeOf(err)

	opAttrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", outcome))
	opTotal.Add(ctx, 1, opAttrs)
	opDuration.Record(ctx, time.Since(start).Seconds(), opAttrs)

	switch outcome {
	case "ok":
		if amount.IsPositive() {
			opMovedCents.Add(ctx, amount.Cents(), metric.WithAttributes(attribute.String("operation", op)))
		}
		s.logger.Debug("Ledger operation committed", zap.String("operation", op), zap.Duration("duration", time.Since(start)))
	case "rejected":
		span.SetAttributes(attribute.String("ledger.rejection", err.Error()))
		s.logger.Debug("Ledger operation rejected", zap.String("operation", op), zap.Error(err))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Ledger operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsBusinessError(err):
		return "rejected"
	default:
		return "error"
	}
}

// IsBusinessError reports whether err is an expected rejection rather than
// an infrastructure failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		money.ErrInvalidAmount,
		account.ErrInsufficientFunds,
		account.ErrAccountNotFound,
		account.ErrForbidden,
		account.ErrInvalidInput,
		bill.ErrBillNotFound,
		bill.ErrBillAlreadyPaid,
		bill.ErrForbidden,
		ErrRecipientNotFound,
		ErrSelfTransfer,
		ErrInvalidRecipient,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// lockOwned locks a single account and verifies that userID owns it.
// Accounts of other users are reported as not found.
func lockOwned(ctx context.Context, tx Tx, userID int64, accountID string) (*account.Account, error) {
	locked, err := tx.LockAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	acc, ok := locked[accountID]
	if !ok || acc.UserID != userID {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}

func describe(description string, typ transaction.Type) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return typ.DefaultDescription()
}
