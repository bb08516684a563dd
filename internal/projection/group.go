package projection

import (
	"math"
	"slices"

	"lifesync/internal/core"
)

// SumBy totals value per key. Unusable values are skipped. The result is
// sorted by amount descending with ties in first-seen order.
func SumBy[T any](records []T, key KeyFunc[T], value AmountFunc[T]) []core.CategoryAmount {
	index := map[string]int{}
	var out []core.CategoryAmount
	for _, r := range records {
		v, ok := value(r)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		k := key(r)
		i, seen := index[k]
		if !seen {
			i = len(out)
			index[k] = i
			out = append(out, core.CategoryAmount{Name: k})
		}
		out[i].Amount += v
	}
	slices.SortStableFunc(out, func(a, b core.CategoryAmount) int {
		switch {
		case a.Amount > b.Amount:
			return -1
		case a.Amount < b.Amount:
			return 1
		}
		return 0
	})
	if out == nil {
		return []core.CategoryAmount{}
	}
	return out
}

// Subtotals sums abs(amount) per key over outflow records only. Records with
// amount >= 0 never contribute and never create a key.
func Subtotals[T any](records []T, key KeyFunc[T], amount AmountFunc[T]) []core.CategoryAmount {
	return SumBy(records, key, outflowOf(amount))
}

// CountBy counts records per key with the same ordering as SumBy.
func CountBy[T any](records []T, key KeyFunc[T]) []core.CategoryCount {
	sums := SumBy(records, key, func(T) (float64, bool) { return 1, true })
	out := make([]core.CategoryCount, len(sums))
	for i, s := range sums {
		out[i] = core.CategoryCount{Name: s.Name, Count: int(s.Amount)}
	}
	return out
}

// Total sums the subtotal amounts.
func Total(items []core.CategoryAmount) float64 {
	var t float64
	for _, it := range items {
		t += it.Amount
	}
	return t
}

// Distribution turns subtotals into percentage shares of their sum. When the
// sum is zero the distribution is empty.
func Distribution(items []core.CategoryAmount) []core.Share {
	total := Total(items)
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return []core.Share{}
	}
	out := make([]core.Share, 0, len(items))
	for _, it := range items {
		out = append(out, core.Share{
			Name:    it.Name,
			Value:   it.Amount,
			Percent: it.Amount / total * 100,
		})
	}
	return out
}

// CountDistribution is Distribution over record counts.
func CountDistribution(counts []core.CategoryCount) []core.Share {
	items := make([]core.CategoryAmount, len(counts))
	for i, c := range counts {
		items[i] = core.CategoryAmount{Name: c.Name, Amount: float64(c.Count)}
	}
	return Distribution(items)
}

// Outflow is the sum of abs(amount) over negative amounts.
func Outflow[T any](records []T, amount AmountFunc[T]) float64 {
	return sumOf(records, outflowOf(amount))
}

// Inflow is the sum of positive amounts.
func Inflow[T any](records []T, amount AmountFunc[T]) float64 {
	return sumOf(records, func(r T) (float64, bool) {
		v, ok := amount(r)
		return v, ok && v > 0
	})
}

func outflowOf[T any](amount AmountFunc[T]) AmountFunc[T] {
	return func(r T) (float64, bool) {
		v, ok := amount(r)
		if !ok || v >= 0 {
			return 0, false
		}
		return -v, true
	}
}

func sumOf[T any](records []T, value AmountFunc[T]) float64 {
	var t float64
	for _, r := range records {
		if v, ok := value(r); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			t += v
		}
	}
	return t
}
