// Package core implements the tax and reconciliation engine: bracket tax
// math, income breakdowns, expense allocation and statement aggregation.
//
// This file contains helpers for parsing and rounding monetary amounts.
// All money values are shopspring decimals; float64 never touches the math.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNegativeGross = errors.New("gross amount cannot be negative")
)

// ParseAmount converts a user-supplied amount string to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Negative values are rejected; amounts enter the system as magnitudes.
// Returns ErrInvalidAmount for empty or malformed input.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round2 rounds a monetary value to two decimal places, half away from zero.
// Every table cell the engine emits passes through here exactly once.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders a monetary value with exactly two decimal places,
// the form every output table uses.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
