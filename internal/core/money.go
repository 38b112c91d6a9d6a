// Package core holds the budget model: ledger entries, their normalization
// from raw spreadsheet rows, aggregation and income distribution.
//
// This file contains strict parsing of user-entered amounts and the money
// formatting shared by the web and CLI surfaces.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountInput parses an amount typed by a user. Unlike NormalizeAmount
// it reports bad input instead of substituting zero. "$" and thousands
// separators are accepted, negatives are not, and the result is rounded to
// cents.
//
// Examples:
//
//	ParseAmountInput("12.34")     -> 12.34, nil
//	ParseAmountInput("$1,200")    -> 1200, nil
//	ParseAmountInput("12.345")    -> 12.35, nil
//	ParseAmountInput("-1")        -> 0, ErrInvalidAmount
func ParseAmountInput(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatMoney renders an amount as dollars with thousands separators,
// e.g. "$1,234.50" or "-$3.00".
func FormatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("$")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
