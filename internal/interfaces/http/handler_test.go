package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"ledger/internal/domain/account"
	"ledger/internal/domain/bill"
	"ledger/internal/domain/ledger"
	"ledger/internal/domain/transaction"
	"ledger/internal/infrastructure/memory"
	"ledger/internal/shared/middleware"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

type testServer struct {
	store  *memory.Store
	router chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	ledgerService := ledger.NewService(store, nil)
	accounts := NewAccountHandler(account.NewService(store.Accounts()), ledgerService, nil)
	transactions := NewTransactionHandler(transaction.NewService(store.Transactions(), store.Accounts()), ledgerService, nil)
	bills := NewBillHandler(bill.NewService(store.Bills()), ledgerService, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, accounts, transactions, bills)
	})
	return &testServer{store: store, router: r}
}

// do serves a request as userID; a zero userID sends it unauthenticated.
func (s *testServer) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req = req.WithContext(middleware.WithUserID(context.Background(), userID))
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Code != code {
		t.Errorf("code = %q, want %q", resp.Code, code)
	}
	if resp.Detail == "" {
		t.Error("expected a detail message")
	}
}

func (s *testServer) openAccount(t *testing.T, userID int64, name string) *account.Account {
	t.Helper()
	rr := s.do(t, userID, http.MethodPost, "/api/accounts", map[string]string{"account_name": name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[*account.Account](t, rr)
}

func (s *testServer) post(t *testing.T, userID int64, accountID string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, userID, http.MethodPost, "/api/transactions/"+accountID, body)
}
