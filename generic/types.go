/*
Package generic provides domain-agnostic primitives shared by the leave engine.

PURPOSE:
  The leave engine counts, debits and credits fractional days. This package
  holds the small value types that make that arithmetic safe and the calendar
  helpers every component agrees on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Day quantities: decimal.Decimal values measured in days (0.5 = half day)
  - Identifiers: prefixed UUID strings for records and ledger entries

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for balances
  2. Normalization: Dates are UTC midnight values (see time.go)

SEE ALSO:
  - time.go: Date normalization, WeekdaySet, DateSet
  - period.go: Inclusive date ranges
*/
package generic

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY QUANTITIES
// =============================================================================

var (
	// HalfDay is the quantity consumed by a single half-day request.
	HalfDay = decimal.New(5, -1)

	// OneDay is the quantity a full working day contributes.
	OneDay = decimal.NewFromInt(1)
)

// NewDays converts a float literal into a day quantity. Intended for tests,
// seed data and JSON inputs that have already been range-checked.
func NewDays(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// ParseDays parses a decimal string such as "1.5".
func ParseDays(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid day quantity %q: %w", s, err)
	}
	return d, nil
}

// DaysParser parses several stored quantities and keeps the first error, so
// row scanners can check once after filling every field.
type DaysParser struct {
	Err error
}

// Parse returns the parsed quantity, or zero once any column has failed.
func (p *DaysParser) Parse(column, s string) decimal.Decimal {
	if p.Err != nil {
		return decimal.Zero
	}
	d, err := ParseDays(s)
	if err != nil {
		p.Err = fmt.Errorf("column %s: %w", column, err)
		return decimal.Zero
	}
	return d
}

// MinDays returns the smaller of two quantities.
func MinDays(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDays returns the larger of two quantities.
func MaxDays(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a random identifier with a readable prefix, e.g. "req-3f6c…".
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
