package entities

import "fmt"

// Money is an integer-minor-unit amount in a single ISO-4217-ish currency
// tag. Amounts are always integer minor units, never float, and currencies
// are compared exactly, never coerced.
type Money struct {
	MinorUnits int64  `json:"minorUnits"`
	Currency   string `json:"currency"`
}

// NewMoney constructs a Money value. The currency tag is stored exactly as
// given.
func NewMoney(minorUnits int64, currency string) Money {
	return Money{MinorUnits: minorUnits, Currency: currency}
}

// Add returns m+other. Panics on currency mismatch: callers must check
// SameCurrency first: mixing currencies silently would violate the ledger's
// single-currency invariant.
func (m Money) Add(other Money) Money {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
	return Money{MinorUnits: m.MinorUnits + other.MinorUnits, Currency: m.Currency}
}

// Sub returns m-other.
func (m Money) Sub(other Money) Money {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
	return Money{MinorUnits: m.MinorUnits - other.MinorUnits, Currency: m.Currency}
}

// SameCurrency reports whether m and other share a currency tag.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

func (m Money) IsZero() bool     { return m.MinorUnits == 0 }
func (m Money) IsNegative() bool { return m.MinorUnits < 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.MinorUnits, m.Currency)
}
