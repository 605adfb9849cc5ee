package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/shared/middleware"
	"ledger/internal/shared/money"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("invalid request")

// ErrorResponse is the body of every non-2xx response. The web client
// displays Detail inline.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{money.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{account.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{ledger.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{bill.ErrBillAlreadyPaid, http.StatusBadRequest, "bill_already_paid"},
	{ledger.ErrInvalidRecipient, http.StatusBadRequest, "validation_error"},
	{transaction.ErrInvalidType, http.StatusBadRequest, "validation_error"},
	{account.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{bill.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{errBadRequest, http.StatusBadRequest, "invalid_request"},
	{account.ErrForbidden, http.StatusForbidden, "forbidden"},
	{bill.ErrForbidden, http.StatusForbidden, "forbidden"},
	{account.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{ledger.ErrRecipientNotFound, http.StatusNotFound, "recipient_not_found"},
	{bill.ErrBillNotFound, http.StatusNotFound, "bill_not_found"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status code. Anything unmapped is
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, ErrorResponse{Detail: err.Error(), Code: m.code})
			return
		}
	}

	logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "Internal server error", Code: "internal_error"})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", errBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON body", errBadRequest)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

// requireUser reads the authenticated user id placed by the auth middleware.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Detail: "Authentication required", Code: "unauthorized"})
		return 0, false
	}
	return userID, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named("http")
}
