// Package projection derives views from normalized record sets: filters,
// date windows, month buckets, grouped subtotals, distributions and
// per-day series. Every function is pure and leaves its input untouched.
package projection

import (
	"slices"

	"lifesync/internal/core"
)

type (
	// DateFunc returns the canonical YYYY-MM-DD key of a record.
	DateFunc[T any] func(T) string
	// AmountFunc returns a signed amount, or false when it is unusable.
	AmountFunc[T any] func(T) (float64, bool)
	// KeyFunc returns the partition label of a record.
	KeyFunc[T any] func(T) string
)

// Filter keeps the records matching keep, in input order.
func Filter[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// InDateWindow keeps records whose day lies in [from, to]. Records with a
// malformed date are left out of this view only.
func InDateWindow[T any](records []T, date DateFunc[T], from, to core.Day) []T {
	if from.After(to) {
		return []T{}
	}
	return Filter(records, func(r T) bool {
		d, err := core.ParseDay(date(r))
		if err != nil {
			return false
		}
		return !d.Before(from) && !d.After(to)
	})
}

// SortByDateDesc returns a copy ordered newest day first. Malformed dates
// sink to the end; ties keep input order.
func SortByDateDesc[T any](records []T, date DateFunc[T]) []T {
	type keyed struct {
		day core.Day
		ok  bool
		rec T
	}
	tmp := make([]keyed, len(records))
	for i, r := range records {
		d, err := core.ParseDay(date(r))
		tmp[i] = keyed{day: d, ok: err == nil, rec: r}
	}
	slices.SortStableFunc(tmp, func(a, b keyed) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case !a.ok && !b.ok:
			return 0
		}
		return b.day.Compare(a.day)
	})
	out := make([]T, len(tmp))
	for i, k := range tmp {
		out[i] = k.rec
	}
	return out
}

// Top returns at most n leading items. n <= 0 means no limit.
func Top[E any](items []E, n int) []E {
	if n <= 0 || n >= len(items) {
		return slices.Clone(items)
	}
	return slices.Clone(items[:n])
}
