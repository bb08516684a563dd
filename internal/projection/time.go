package projection

import (
	"slices"

	"lifesync/internal/core"
)

// MonthBucket holds the records of one calendar month.
type MonthBucket[T any] struct {
	Month   core.MonthKey
	Records []T
}

// MonthBuckets groups records by the (year, month) of their date, oldest
// month first. Records with a malformed date are left out.
func MonthBuckets[T any](records []T, date DateFunc[T]) []MonthBucket[T] {
	index := map[core.MonthKey]int{}
	var out []MonthBucket[T]
	for _, r := range records {
		d, err := core.ParseDay(date(r))
		if err != nil {
			continue
		}
		k := d.MonthKey()
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, MonthBucket[T]{Month: k})
		}
		out[i].Records = append(out[i].Records, r)
	}
	slices.SortFunc(out, func(a, b MonthBucket[T]) int { return a.Month.Compare(b.Month) })
	if out == nil {
		return []MonthBucket[T]{}
	}
	return out
}

// SortNewestFirst returns the buckets newest month first. It is a display
// ordering; the input slice is not modified.
func SortNewestFirst[T any](buckets []MonthBucket[T]) []MonthBucket[T] {
	out := slices.Clone(buckets)
	slices.SortFunc(out, func(a, b MonthBucket[T]) int { return b.Month.Compare(a.Month) })
	return out
}

// InMonth keeps the records dated in month.
func InMonth[T any](records []T, date DateFunc[T], month core.MonthKey) []T {
	return Filter(records, func(r T) bool {
		d, err := core.ParseDay(date(r))
		return err == nil && d.MonthKey() == month
	})
}

// CurrentMonth keeps the records dated in the month containing today.
func CurrentMonth[T any](records []T, date DateFunc[T], today core.Day) []T {
	return InMonth(records, date, today.MonthKey())
}

// MonthOutflow is the outflow total of records dated in month.
func MonthOutflow[T any](records []T, date DateFunc[T], amount AmountFunc[T], month core.MonthKey) float64 {
	return Outflow(InMonth(records, date, month), amount)
}

// MonthInflow is the inflow total of records dated in month.
func MonthInflow[T any](records []T, date DateFunc[T], amount AmountFunc[T], month core.MonthKey) float64 {
	return Inflow(InMonth(records, date, month), amount)
}

// ExpenseMonth summarizes one month of expense records with per-group
// outflow subtotals.
func ExpenseMonth(expenses []core.Expense, month core.MonthKey) core.MonthOverview {
	in := InMonth(expenses, core.Expense.DateKey, month)
	return core.MonthOverview{
		Month:   month,
		Outflow: Outflow(in, core.Expense.AmountValue),
		Inflow:  Inflow(in, core.Expense.AmountValue),
		ByGroup: Subtotals(in, expenseGroup, core.Expense.AmountValue),
	}
}

func expenseGroup(e core.Expense) string {
	if e.Group != "" {
		return e.Group
	}
	return e.Category
}

// WeeklySeries returns one point per day for the seven days ending today,
// oldest first. A record lands on a day when its date key equals that day's
// canonical key; records with any other key do not contribute.
func WeeklySeries[T any](records []T, date DateFunc[T], value func(T) float64, today core.Day) []core.DayPoint {
	return DailySeries(records, date, value, today, 7)
}

// DailySeries is WeeklySeries over an arbitrary number of days.
func DailySeries[T any](records []T, date DateFunc[T], value func(T) float64, today core.Day, days int) []core.DayPoint {
	if days <= 0 {
		return []core.DayPoint{}
	}
	out := make([]core.DayPoint, days)
	pos := make(map[string]int, days)
	for i := range out {
		d := today.AddDays(i - days + 1)
		out[i] = core.DayPoint{Day: d}
		pos[d.String()] = i
	}
	for _, r := range records {
		if i, ok := pos[date(r)]; ok {
			out[i].Value += value(r)
		}
	}
	return out
}
