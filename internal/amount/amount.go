// Package amount provides shared crypto amount parsing and comparison.
//
// Amounts cross the wire as decimal strings and are compared at 8 decimal
// places (the finest granularity of the supported assets; 1 unit =
// 100,000,000 smallest units).
package amount

import (
	"math/big"
	"strings"
)

const Decimals = 8

// Parse converts a decimal string (e.g. "1.5") to its smallest-unit
// big.Int representation (150000000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 8 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly 8 decimal places (e.g. "1.50000000").
func Format(v *big.Int) string {
	if v == nil {
		return "0.00000000"
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Cmp compares two decimal amount strings. It returns -1, 0, or 1 like
// big.Int.Cmp, and false if either string is not a valid amount.
func Cmp(a, b string) (int, bool) {
	av, ok := Parse(a)
	if !ok {
		return 0, false
	}
	bv, ok := Parse(b)
	if !ok {
		return 0, false
	}
	return av.Cmp(bv), true
}

// GTE reports whether a >= b - tolerance. Invalid inputs report false.
func GTE(a, b, tolerance string) bool {
	av, ok := Parse(a)
	if !ok {
		return false
	}
	bv, ok := Parse(b)
	if !ok {
		return false
	}
	tol, ok := Parse(tolerance)
	if !ok {
		return false
	}
	floor := new(big.Int).Sub(bv, tol)
	return av.Cmp(floor) >= 0
}

// IsPositive reports whether s parses to an amount strictly greater than zero.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}
