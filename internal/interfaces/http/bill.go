package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ledger/internal/domain/bill"
	"ledger/internal/domain/ledger"
	"ledger/internal/shared/money"
)

// BillHandler serves /api/bills.
type BillHandler struct {
	billService   *bill.Service
	ledgerService *ledger.Service
	logger        *zap.Logger
}

func NewBillHandler(billService *bill.Service, ledgerService *ledger.Service, logger *zap.Logger) *BillHandler {
	return &BillHandler{
		billService:   billService,
		ledgerService: ledgerService,
		logger:        loggerOrNop(logger),
	}
}

type CreateBillRequest struct {
	BillType      string       `json:"bill_type"`
	ProviderName  string       `json:"provider_name"`
	AccountNumber string       `json:"account_number"`
	Amount        money.Amount `json:"amount"`
	DueDate       string       `json:"due_date"`
}

type PayBillRequest struct {
	BillID        string `json:"bill_id"`
	FromAccountID string `json:"from_account_id"`
}

// HandleCreateBill registers a pending bill.
func (h *BillHandler) HandleCreateBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	typ, err := bill.ParseType(req.BillType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	b, err := h.billService.CreateBill(r.Context(), userID, bill.CreateBillInput{
		Type:          typ,
		ProviderName:  req.ProviderName,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		DueDate:       dueDate,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

// HandleListBills returns the caller's bills ordered by due date.
func (h *BillHandler) HandleListBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	bills, err := h.billService.ListBills(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if bills == nil {
		bills = []*bill.Bill{}
	}

	writeJSON(w, http.StatusOK, bills)
}

func (h *BillHandler) HandleGetBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	b, err := h.billService.GetBill(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// HandlePayBill settles a bill from one of the caller's accounts and returns
// the bill_payment transaction.
func (h *BillHandler) HandlePayBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req PayBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.BillID == "" || req.FromAccountID == "" {
		writeError(w, r, h.logger, fmt.Errorf("%w: bill_id and from_account_id are required", bill.ErrInvalidInput))
		return
	}

	tx, err := h.ledgerService.PayBill(r.Context(), userID, req.BillID, req.FromAccountID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// HandleDeleteBill removes an unpaid bill.
func (h *BillHandler) HandleDeleteBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.billService.DeleteBill(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseDueDate accepts an RFC 3339 timestamp or a bare date. A bare date is
// due at the end of that day in UTC.
func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: due_date is required", bill.ErrInvalidInput)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("%w: due_date must be YYYY-MM-DD or an RFC 3339 timestamp", bill.ErrInvalidInput)
}
