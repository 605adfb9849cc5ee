package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ledger/internal/domain/account"
	"ledger/internal/domain/ledger"
)

// AccountHandler serves /api/accounts.
type AccountHandler struct {
	accountService *account.Service
	ledgerService  *ledger.Service
	logger         *zap.Logger
}

// NewAccountHandler creates a new account handler with service layer
func NewAccountHandler(accountService *account.Service, ledgerService *ledger.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		ledgerService:  ledgerService,
		logger:         loggerOrNop(logger),
	}
}

type CreateAccountRequest struct {
	Name string `json:"account_name"`
}

// HandleListAccounts returns all accounts for the authenticated user
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.accountService.ListAccountsByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}

	writeJSON(w, http.StatusOK, accounts)
}

// HandleCreateAccount opens a zero-balance account with a fresh account number.
func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	acc, err := h.accountService.CreateAccount(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("account created",
		zap.Int64("user_id", userID),
		zap.String("account_id", acc.ID),
	)
	writeJSON(w, http.StatusCreated, acc)
}

// HandleGetAccount returns one account owned by the caller.
func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	acc, err := h.accountService.GetAccount(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

// HandleReconcile replays the account's transaction log against its balance.
func (h *AccountHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.ledgerService.Reconcile(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !rec.Consistent {
		h.logger.Error("account log does not match balance",
			zap.String("account_id", rec.AccountID),
			zap.String("first_mismatch_id", rec.FirstMismatchID),
		)
	}

	writeJSON(w, http.StatusOK, rec)
}
