package transaction

import "ledger/internal/shared/money"

// ReplayResult describes the outcome of replaying an account history.
type ReplayResult struct {
	Balance         money.Amount
	Count           int
	Consistent      bool
	FirstMismatchID string
}

// Replay applies the signed amounts of history, oldest first, starting from
// zero. Every intermediate sum must equal the record's BalanceAfter and must
// never be negative; the final sum must equal current.
func Replay(history []*Transaction, current money.Amount) ReplayResult {
	result := ReplayResult{Consistent: true}
	balance := money.Zero()

	for _, tx := range history {
		balance = balance.Add(tx.SignedAmount())
		result.Count++
		if result.Consistent && (balance.IsNegative() || !balance.Equal(tx.BalanceAfter)) {
			result.Consistent = false
			result.FirstMismatchID = tx.ID
		}
	}

	result.Balance = balance
	if !balance.Equal(current) {
		result.Consistent = false
	}
	return result
}
