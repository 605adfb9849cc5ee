// Package money provides the fixed-point amount type used for balances and
// transaction values. Amounts carry exactly two fractional digits and never
// touch floating point.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every amount.
const Scale = 2

var ErrInvalidAmount = errors.New("invalid amount")

// Max is the largest amount or balance a NUMERIC(18,2) column can hold.
var Max = Amount{d: decimal.RequireFromString("9999999999999999.99")}

// Amount is a currency value with two fractional digits.
// The zero value is 0.00 and ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero returns 0.00.
func Zero() Amount {
	return Amount{}
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -Scale)}
}

// Parse reads a decimal string such as "150", "150.5" or "150.50".
// More than two fractional digits is rejected rather than rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	return fromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	truncated := d.Truncate(Scale)
	if !d.Equal(truncated) {
		return Amount{}, fmt.Errorf("%w: at most %d decimal places are allowed", ErrInvalidAmount, Scale)
	}
	a := Amount{d: truncated}
	if a.ExceedsMax() {
		return Amount{}, fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, Max)
	}
	return a, nil
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }

func (a Amount) Cmp(b Amount) int          { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool       { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) IsZero() bool              { return a.d.IsZero() }
func (a Amount) IsPositive() bool          { return a.d.IsPositive() }
func (a Amount) IsNegative() bool          { return a.d.IsNegative() }
func (a Amount) Decimal() decimal.Decimal  { return a.d }
func (a Amount) Cents() int64              { return a.d.Shift(Scale).IntPart() }
func (a Amount) String() string            { return a.d.StringFixed(Scale) }

// ExceedsMax reports whether |a| is larger than Max.
func (a Amount) ExceedsMax() bool {
	return a.d.Abs().GreaterThan(Max.d)
}

// RequirePositive returns ErrInvalidAmount unless 0 < a <= Max.
func (a Amount) RequirePositive() error {
	if !a.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if a.ExceedsMax() {
		return fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, Max)
	}
	return nil
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	s = strings.Trim(s, `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("failed to scan amount: %w", err)
	}
	a.d = d.Round(Scale)
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}
