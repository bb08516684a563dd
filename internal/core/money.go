// Package core holds the LifeSync domain records, calendar-day keys,
// money helpers and the shared error taxonomy.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses an unsigned form amount into a float rounded to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted and the third
// decimal is rounded half away from zero. Signs, zero and garbage are
// rejected: the sign is always derived from the record kind.
//
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-3")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 || strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	f, _ := d.Float64()
	return f, nil
}

// SignedAmount applies the sign convention of kind to an unsigned magnitude.
func SignedAmount(kind ExpenseKind, magnitude float64) (float64, error) {
	if !kind.Valid() {
		return 0, NewValidationError("kind", "unknown kind "+string(kind))
	}
	if magnitude <= 0 {
		return 0, ErrInvalidAmount
	}
	if kind.IsOutflow() {
		return -magnitude, nil
	}
	return magnitude, nil
}

// RoundCents rounds to two decimals, half away from zero.
func RoundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
