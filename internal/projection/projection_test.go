package projection

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/normalize"
	"lifesync/internal/store"
)

const tolerance = 0.01

func exp(date string, amount float64, group string) core.Expense {
	return core.Expense{Date: date, Amount: amount, Group: group}
}

func groupOf(e core.Expense) string { return e.Group }

func TestSubtotalsCountOutflowOnly(t *testing.T) {
	records := []core.Expense{
		exp("2024-01-01", -10, "food"),
		exp("2024-01-02", -5.5, "food"),
		exp("2024-01-03", 100, "food"),
		exp("2024-01-04", -20, "rent"),
		exp("2024-01-05", 0, "travel"),
		exp("2024-01-06", 40, "salary"),
	}

	got := Subtotals(records, groupOf, core.Expense.AmountValue)

	require.Len(t, got, 2, "inflow-only and zero groups must not appear")
	assert.Equal(t, "rent", got[0].Name)
	assert.InDelta(t, 20, got[0].Amount, tolerance)
	assert.Equal(t, "food", got[1].Name)
	assert.InDelta(t, 15.5, got[1].Amount, tolerance)
}

func TestSubtotalsProperty(t *testing.T) {
	// Pseudo-random but deterministic data set.
	groups := []string{"a", "b", "c", "d"}
	var records []core.Expense
	for i := 0; i < 200; i++ {
		amount := float64((i*37)%101 - 50)
		records = append(records, exp("2024-03-01", amount, groups[(i*7)%len(groups)]))
	}

	got := Subtotals(records, groupOf, core.Expense.AmountValue)

	for _, sub := range got {
		var want float64
		for _, r := range records {
			if r.Group == sub.Name && r.Amount < 0 {
				want += math.Abs(r.Amount)
			}
		}
		assert.InDelta(t, want, sub.Amount, tolerance, "group %s", sub.Name)
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Amount, got[i].Amount)
	}
}

func TestSubtotalsTiesKeepFirstSeenOrder(t *testing.T) {
	records := []core.Expense{
		exp("2024-01-01", -10, "zeta"),
		exp("2024-01-01", -10, "alpha"),
		exp("2024-01-01", -10, "mid"),
	}
	got := Subtotals(records, groupOf, core.Expense.AmountValue)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{got[0].Name, got[1].Name, got[2].Name})
	assert.Len(t, Top(got, 2), 2)
	assert.Len(t, Top(got, 0), 3)
}

func TestSubtotalsSkipCorruptAmounts(t *testing.T) {
	bad := exp("2024-01-01", -999, "food")
	bad.Corrupt = []string{"amount"}
	got := Subtotals([]core.Expense{bad, exp("2024-01-01", -1, "food")}, groupOf, core.Expense.AmountValue)
	require.Len(t, got, 1)
	assert.InDelta(t, 1, got[0].Amount, tolerance)
}

func TestDistribution(t *testing.T) {
	subs := []core.CategoryAmount{{Name: "a", Amount: 30}, {Name: "b", Amount: 10}, {Name: "c", Amount: 20}}
	shares := Distribution(subs)
	require.Len(t, shares, 3)

	var sum float64
	for i, s := range shares {
		assert.InDelta(t, subs[i].Amount/60*100, s.Percent, tolerance)
		assert.False(t, math.IsNaN(s.Percent) || math.IsInf(s.Percent, 0))
		sum += s.Percent
	}
	assert.InDelta(t, 100, sum, tolerance)
	assert.Equal(t, 16.7, shares[1].Rounded())
}

func TestDistributionEmptyWhenTotalIsZero(t *testing.T) {
	assert.Empty(t, Distribution(nil))
	assert.Empty(t, Distribution([]core.CategoryAmount{{Name: "a", Amount: 0}}))
	assert.Empty(t, CountDistribution(nil))
}

func TestCountBy(t *testing.T) {
	tasks := []core.Task{
		{Priority: core.PriorityHigh},
		{Priority: core.PriorityLow},
		{Priority: core.PriorityHigh},
	}
	counts := CountBy(tasks, func(t core.Task) string { return string(t.Priority) })
	require.Len(t, counts, 2)
	assert.Equal(t, core.CategoryCount{Name: "high", Count: 2}, counts[0])

	shares := CountDistribution(counts)
	assert.InDelta(t, 66.67, shares[0].Percent, tolerance)
}

func TestTaskMinutesAggregatesBothLevels(t *testing.T) {
	task := core.Task{
		TimeLogs: []core.TimeLog{{Minutes: 10}, {Minutes: 15}},
		Subtasks: []core.Subtask{{TimeLogs: []core.TimeLog{{Minutes: 5}, {Minutes: 5}}}},
	}
	assert.Equal(t, 35, TaskMinutes(task))
	assert.Equal(t, 35, TotalMinutes([]core.Task{task}))
	assert.Len(t, TimeLoggedByDay([]core.Task{task}), 4)
}

func TestMonthScenario(t *testing.T) {
	records := []core.Expense{
		{Date: "2024-01-05", Amount: -100, Category: "food"},
		{Date: "2024-01-20", Amount: -50, Category: "food"},
		{Date: "2024-02-01", Amount: 200, Category: "reimbursement"},
	}
	jan := core.MonthKey{Year: 2024, Month: time.January}
	feb := core.MonthKey{Year: 2024, Month: time.February}

	assert.InDelta(t, 150, MonthOutflow(records, core.Expense.DateKey, core.Expense.AmountValue, jan), tolerance)
	assert.InDelta(t, 0, MonthOutflow(records, core.Expense.DateKey, core.Expense.AmountValue, feb), tolerance)
	assert.InDelta(t, 200, MonthInflow(records, core.Expense.DateKey, core.Expense.AmountValue, feb), tolerance)

	buckets := MonthBuckets(records, core.Expense.DateKey)
	require.Len(t, buckets, 2)
	assert.Equal(t, jan, buckets[0].Month)
	assert.Len(t, buckets[0].Records, 2)
	assert.Equal(t, feb, SortNewestFirst(buckets)[0].Month)
	assert.Equal(t, jan, buckets[0].Month, "SortNewestFirst must not reorder its input")

	overview := ExpenseMonth(records, feb)
	assert.InDelta(t, 0, overview.Outflow, tolerance)
	assert.Empty(t, overview.ByGroup)
}

func TestMalformedDateOnlyLeavesDatedViews(t *testing.T) {
	var records []core.Expense
	for i := 1; i <= 9; i++ {
		records = append(records, exp(fmt.Sprintf("2024-05-%02d", i), -1, "x"))
	}
	records = append(records, exp("not-a-date", -1, "x"))

	all := Filter(records, func(core.Expense) bool { return true })
	assert.Len(t, all, 10)

	from := core.NewDay(2024, time.May, 1)
	to := core.NewDay(2024, time.May, 31)
	assert.Len(t, InDateWindow(records, core.Expense.DateKey, from, to), 9)

	sorted := SortByDateDesc(records, core.Expense.DateKey)
	require.Len(t, sorted, 10)
	assert.Equal(t, "2024-05-09", sorted[0].Date)
	assert.Equal(t, "not-a-date", sorted[9].Date)
}

func TestInDateWindowIsInclusive(t *testing.T) {
	records := []core.Expense{exp("2024-05-01", -1, ""), exp("2024-05-02", -1, ""), exp("2024-05-03", -1, "")}
	d1 := core.NewDay(2024, time.May, 1)
	d3 := core.NewDay(2024, time.May, 3)
	assert.Len(t, InDateWindow(records, core.Expense.DateKey, d1, d3), 3)
	assert.Len(t, InDateWindow(records, core.Expense.DateKey, d3, d3), 1)
	assert.Empty(t, InDateWindow(records, core.Expense.DateKey, d3, d1))
}

func TestWeeklySeries(t *testing.T) {
	today := core.NewDay(2024, time.March, 2)
	records := []TimeEntry{
		{Date: "2024-02-25", Minutes: 5}, // first day of the window
		{Date: "2024-02-24", Minutes: 99}, // outside
		{Date: "2024-03-02", Minutes: 10},
		{Date: "2024-03-02", Minutes: 20},
		{Date: "2024-3-2", Minutes: 1000}, // not canonical
	}

	series := WeeklySeries(records,
		func(e TimeEntry) string { return e.Date },
		func(e TimeEntry) float64 { return float64(e.Minutes) },
		today)

	require.Len(t, series, 7)
	assert.Equal(t, "2024-02-25", series[0].Day.String())
	assert.Equal(t, "2024-03-02", series[6].Day.String())
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i-1].Day.Before(series[i].Day))
	}
	assert.InDelta(t, 5, series[0].Value, tolerance)
	assert.InDelta(t, 30, series[6].Value, tolerance)
}

func TestWeeklyMinutesBucketsStoredInstantsInUserZone(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	at := func(s string) store.Timestamp {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return store.Timestamp{Seconds: ts.Unix()}
	}
	// Logs written from devices in different zones, read by a user in New
	// York. Each lands on the New York calendar day of its instant, never
	// on the UTC day or the writer's day.
	doc := store.Document{ID: "t1", Data: map[string]any{
		"title": "on call",
		"timeLogs": []any{
			// Mar 11 in Tokyo, Mar 10 12:30 in New York.
			map[string]any{"minutes": 10.0, "date": "2024-03-11T01:30:00+09:00"},
			// Mar 11 03:30 UTC, Mar 10 23:30 in New York.
			map[string]any{"minutes": 20.0, "date": at("2024-03-11T03:30:00Z")},
			map[string]any{"minutes": 5.0, "date": "2024-03-10"},
		},
		"subtasks": []any{map[string]any{
			"id": "s1", "title": "handover",
			"timeLogs": []any{
				// Mar 10 04:30 UTC, still Mar 9 in New York.
				map[string]any{"minutes": 7.0, "date": at("2024-03-10T04:30:00Z")},
			},
		}},
	}}
	task := normalize.New("u1", newYork, nil).Task(doc)
	require.Empty(t, task.Corrupt)

	series := WeeklyMinutes([]core.Task{task}, core.NewDay(2024, time.March, 10))
	require.Len(t, series, 7)
	assert.Equal(t, "2024-03-10", series[6].Day.String())
	assert.InDelta(t, 35, series[6].Value, tolerance)
	assert.InDelta(t, 7, series[5].Value, tolerance)
	for _, p := range series[:5] {
		assert.Zero(t, p.Value, p.Day.String())
	}
}

func TestWeeklyMinutesAcrossDST(t *testing.T) {
	// The window spans the US spring-forward night.
	today := core.NewDay(2024, time.March, 12)
	tasks := []core.Task{{
		TimeLogs: []core.TimeLog{{Minutes: 30, Date: "2024-03-10"}},
		Subtasks: []core.Subtask{{TimeLogs: []core.TimeLog{{Minutes: 15, Date: "2024-03-11"}}}},
	}}
	series := WeeklyMinutes(tasks, today)
	require.Len(t, series, 7)
	assert.Equal(t, "2024-03-06", series[0].Day.String())
	assert.InDelta(t, 30, series[4].Value, tolerance)
	assert.InDelta(t, 15, series[5].Value, tolerance)
}

func TestUniqueValues(t *testing.T) {
	changes := []core.Change{{Server: "web-2"}, {Server: "db-1"}, {Server: "Web-2"}, {Server: "web-2"}, {Server: ""}}
	assert.Equal(t, []string{"Web-2", "db-1", "web-2"}, UniqueValues(changes, func(c core.Change) string { return c.Server }))

	rx := []core.Prescription{{Tags: []string{"chronic", "allergy"}}, {Tags: []string{"allergy"}}, {}}
	assert.Equal(t, []string{"allergy", "chronic"}, UniqueMulti(rx, func(p core.Prescription) []string { return p.Tags }))
}

func TestProjectionsDoNotMutateInput(t *testing.T) {
	records := []core.Expense{exp("2024-01-02", -1, "b"), exp("2024-01-01", -2, "a")}
	snapshot := append([]core.Expense(nil), records...)

	_ = Subtotals(records, groupOf, core.Expense.AmountValue)
	_ = SortByDateDesc(records, core.Expense.DateKey)
	_ = MonthBuckets(records, core.Expense.DateKey)

	assert.Equal(t, snapshot, records)
}

func TestOverdue(t *testing.T) {
	today := core.NewDay(2024, time.June, 10)
	tasks := []core.Task{
		{Title: "late", DueDate: "2024-06-09", Status: core.TaskOpen},
		{Title: "done", DueDate: "2024-06-01", Status: core.TaskDone},
		{Title: "today", DueDate: "2024-06-10", Status: core.TaskOpen},
		{Title: "none"},
	}
	got := Overdue(tasks, today)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].Title)

	done, total := SubtaskProgress(core.Task{Subtasks: []core.Subtask{{Done: true}, {}}})
	assert.Equal(t, 1, done)
	assert.Equal(t, 2, total)
}
