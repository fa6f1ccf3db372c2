// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and decimal representations.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const maxAmountLen = 64

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseDecimalToCents converts a decimal amount in whole currency units to
// cents using round-half-to-even.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. A comma
// is only treated as the separator when no dot is present and at most two
// digits follow it, so a thousands separator ("1,234") is rejected rather
// than read as 12.34. Signs are rejected, as are results that round to zero
// or do not fit in an int64.
//
// Examples:
//
//	ParseDecimalToCents("12.3")   -> 1230, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("1,234")  -> 0, ErrInvalidAmount
//	ParseDecimalToCents("0.125")  -> 12, nil (ties go to the even cent)
//	ParseDecimalToCents("0.135")  -> 14, nil
//	ParseDecimalToCents("0.004")  -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLen {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		if len(s)-strings.IndexByte(s, ',')-1 > 2 {
			return 0, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	// Exponent notation can request arbitrarily large rescales.
	if exp := d.Exponent(); exp > 18 || exp < -32 {
		return 0, ErrInvalidAmount
	}

	cents := d.Shift(2).RoundBank(0)
	if cents.Sign() <= 0 || cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseMoney is ParseDecimalToCents wrapped in a Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// Decimal returns the amount in whole currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
