package transaction

import (
	"errors"
	"testing"

	"ledger/internal/shared/money"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"deposit", TypeDeposit, false},
		{" Withdrawal ", TypeWithdrawal, false},
		{"transfer", TypeTransfer, false},
		{"bill_payment", TypeBillPayment, false},
		{"refund", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidType) {
					t.Fatalf("expected ErrInvalidType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignedAmount(t *testing.T) {
	amount := money.MustParse("25.00")
	for _, typ := range []Type{TypeDeposit, TypeWithdrawal, TypeTransfer, TypeBillPayment} {
		tx := &Transaction{Type: typ, Amount: amount}
		got := tx.SignedAmount()
		if typ == TypeDeposit && !got.Equal(amount) {
			t.Errorf("%s: got %s, want %s", typ, got, amount)
		}
		if typ != TypeDeposit && !got.Equal(amount.Neg()) {
			t.Errorf("%s: got %s, want %s", typ, got, amount.Neg())
		}
	}
}

func TestAppendParamsValidate(t *testing.T) {
	recipient := "1234567890"
	base := AppendParams{
		ID:           "tx-1",
		AccountID:    "acc-1",
		Type:         TypeDeposit,
		Amount:       money.MustParse("10.00"),
		BalanceAfter: money.MustParse("10.00"),
	}

	tests := []struct {
		name    string
		mutate  func(p *AppendParams)
		wantErr bool
	}{
		{"valid deposit", func(p *AppendParams) {}, false},
		{"valid transfer", func(p *AppendParams) { p.Type = TypeTransfer; p.RecipientAccount = &recipient }, false},
		{"transfer without recipient", func(p *AppendParams) { p.Type = TypeTransfer }, true},
		{"deposit with recipient", func(p *AppendParams) { p.RecipientAccount = &recipient }, true},
		{"zero amount", func(p *AppendParams) { p.Amount = money.Zero() }, true},
		{"negative balance", func(p *AppendParams) { p.BalanceAfter = money.MustParse("-0.01") }, true},
		{"missing account", func(p *AppendParams) { p.AccountID = "" }, true},
		{"unknown type", func(p *AppendParams) { p.Type = "refund" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultPageSize, 0},
		{-5, -1, DefaultPageSize, 0},
		{10, 20, 10, 20},
		{1000, 0, MaxPageSize, 0},
	}

	for _, tt := range tests {
		limit, offset := NormalizePage(tt.limit, tt.offset)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Errorf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tt.limit, tt.offset, limit, offset, tt.wantLimit, tt.wantOffset)
		}
	}
}
