package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/money"
)

// TransactionHandler serves /api/transactions.
type TransactionHandler struct {
	transactionService *transaction.Service
	ledgerService      *ledger.Service
	logger             *zap.Logger
}

func NewTransactionHandler(transactionService *transaction.Service, ledgerService *ledger.Service, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		ledgerService:      ledgerService,
		logger:             loggerOrNop(logger),
	}
}

// CreateTransactionRequest is the body of POST /api/transactions/{account_id}.
type CreateTransactionRequest struct {
	Amount           money.Amount `json:"amount"`
	TransactionType  string       `json:"transaction_type"`
	Description      string       `json:"description"`
	RecipientAccount string       `json:"recipient_account"`
}

// HandleCreateTransaction posts a deposit, withdrawal or transfer against
// the account in the path.
func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "account_id")

	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	typ, err := transaction.ParseType(req.TransactionType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if typ != transaction.TypeTransfer && req.RecipientAccount != "" {
		writeError(w, r, h.logger, fmt.Errorf("%w: recipient_account is only valid for transfers", errBadRequest))
		return
	}

	var tx *transaction.Transaction
	switch typ {
	case transaction.TypeDeposit:
		tx, err = h.ledgerService.Deposit(r.Context(), userID, accountID, req.Amount, req.Description)
	case transaction.TypeWithdrawal:
		tx, err = h.ledgerService.Withdraw(r.Context(), userID, accountID, req.Amount, req.Description)
	case transaction.TypeTransfer:
		tx, err = h.ledgerService.Transfer(r.Context(), userID, accountID, req.RecipientAccount, req.Amount, req.Description)
	default:
		err = fmt.Errorf("%w: %s must go through /api/bills/pay", transaction.ErrInvalidType, typ)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// HandleListTransactions returns the account's history, newest first.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", transaction.DefaultPageSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	txs, err := h.transactionService.ListByAccount(r.Context(), userID, chi.URLParam(r, "account_id"), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if txs == nil {
		txs = []*transaction.Transaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}
