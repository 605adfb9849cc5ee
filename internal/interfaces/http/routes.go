package http

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the authenticated ledger API on r.
func RegisterRoutes(r chi.Router, accounts *AccountHandler, transactions *TransactionHandler, bills *BillHandler) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", accounts.HandleListAccounts)
		r.Post("/", accounts.HandleCreateAccount)
		r.Get("/{id}", accounts.HandleGetAccount)
		r.Get("/{id}/reconcile", accounts.HandleReconcile)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/{account_id}", transactions.HandleListTransactions)
		r.Post("/{account_id}", transactions.HandleCreateTransaction)
	})

	r.Route("/bills", func(r chi.Router) {
		r.Get("/", bills.HandleListBills)
		r.Post("/", bills.HandleCreateBill)
		r.Post("/pay", bills.HandlePayBill)
		r.Get("/{id}", bills.HandleGetBill)
		r.Delete("/{id}", bills.HandleDeleteBill)
	})
}
