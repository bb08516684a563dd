package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/cache"
	"lifesync/internal/core"
	"lifesync/internal/store"
	"lifesync/internal/store/memory"
)

func mustDay(t *testing.T, s string) core.Day {
	t.Helper()
	d, err := core.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestBuild(t *testing.T) {
	today := mustDay(t, "2024-01-20")
	r := Records{
		Expenses: []core.Expense{
			{Date: "2024-01-02", Amount: -100, Group: "food", Kind: core.KindExpense},
			{Date: "2024-01-03", Amount: -50, Group: "rent", Kind: core.KindExpense},
			{Date: "2024-01-04", Amount: 900, Group: "salary", Kind: core.KindIncome},
			{Date: "2024-01-05", Amount: -40, Group: "friends", Kind: core.KindLent, Status: core.LendPending},
			{Date: "2023-12-31", Amount: -70, Group: "food", Kind: core.KindExpense},
		},
		Tasks: []core.Task{
			{Title: "a", Status: core.TaskOpen, Priority: core.PriorityHigh, DueDate: "2024-01-10",
				TimeLogs: []core.TimeLog{{Minutes: 30, Date: "2024-01-20"}}},
			{Title: "b", Status: core.TaskDone, Priority: core.PriorityLow},
		},
		Investments: []core.Investment{
			{Type: core.InvestFund, Invested: 100, CurrentValue: 150},
			{Type: core.InvestCash, Invested: 50, CurrentValue: 50},
			{Meta: core.Meta{Corrupt: []string{"currentValue"}}, Type: core.InvestStock, Invested: 10},
		},
		Incidents: []core.Incident{
			{Priority: core.IncidentCritical, Status: core.IncidentOpen},
			{Priority: core.IncidentLow, Status: core.IncidentResolved},
		},
		Changes: []core.Change{
			{Title: "later", Status: core.ChangePlanned, Date: "2024-02-01"},
			{Title: "soon", Status: core.ChangePlanned, Date: "2024-01-21"},
			{Title: "past", Status: core.ChangePlanned, Date: "2024-01-01"},
			{Title: "done", Status: core.ChangeCompleted, Date: "2024-01-25"},
		},
	}

	o := Build(r, today)
	assert.InDelta(t, 190, o.Month.Outflow, 0.01, "lent money leaves the account too")
	assert.InDelta(t, 900, o.Month.Inflow, 0.01)
	require.NotEmpty(t, o.TopGroups)
	assert.Equal(t, "food", o.TopGroups[0].Name)
	assert.InDelta(t, 40, o.PendingLent, 0.01)
	assert.Equal(t, 1, o.PendingCount)

	require.Len(t, o.WeeklyMinutes, 7)
	assert.Equal(t, 30.0, o.WeeklyMinutes[6].Value)
	require.Len(t, o.OpenTasksByPriority, 1)
	assert.Equal(t, "high", o.OpenTasksByPriority[0].Name)
	assert.Equal(t, 1, o.OverdueTasks)

	require.Len(t, o.Portfolio, 2)
	assert.Equal(t, "fund", o.Portfolio[0].Name)
	assert.InDelta(t, 75, o.Portfolio[0].Percent, 0.01)
	assert.InDelta(t, 50, o.PortfolioGain, 0.01)
	assert.Equal(t, 1, o.CorruptInvestments)

	require.Len(t, o.OpenIncidents, 1)
	assert.Equal(t, "critical", o.OpenIncidents[0].Name)

	require.Len(t, o.UpcomingChanges, 2)
	assert.Equal(t, "soon", o.UpcomingChanges[0].Title)
}

func TestBuildEmpty(t *testing.T) {
	o := Build(Records{}, mustDay(t, "2024-01-20"))
	assert.Empty(t, o.Portfolio)
	assert.Empty(t, o.OpenIncidents)
	assert.Len(t, o.WeeklyMinutes, 7)
}

func TestServiceRespectsPermissionsAndCaches(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	today := mustDay(t, "2024-01-20")
	_, err := st.Create(ctx, store.UserPath("u1", core.CollectionExpenses),
		map[string]any{"date": "2024-01-02", "amount": -10.0, "kind": "expense", "group": "food"})
	require.NoError(t, err)
	_, err = st.Create(ctx, store.UserPath("u1", core.CollectionTasks),
		map[string]any{"title": "x", "priority": "urgent"})
	require.NoError(t, err)

	c := cache.NewLRUCache[Overview](8, time.Minute)
	svc := NewService(st, nil, time.UTC, c, nil)

	tasksOnly := core.Permission{Role: core.RoleUser, Apps: []string{core.AppTasks}}
	o, err := svc.Overview(ctx, "u1", tasksOnly, today)
	require.NoError(t, err)
	assert.Zero(t, o.Month.Outflow, "expenses app not granted")
	require.Len(t, o.OpenTasksByPriority, 1)

	admin := core.Permission{Role: core.RoleAdmin}
	o, err = svc.Overview(ctx, "u1", admin, today)
	require.NoError(t, err)
	assert.InDelta(t, 10, o.Month.Outflow, 0.01)

	_, err = svc.Overview(ctx, "u1", admin, today)
	require.NoError(t, err)
	hits, _ := c.Stats()
	assert.Equal(t, 1, hits)

	_, err = st.Create(ctx, store.UserPath("u1", core.CollectionExpenses),
		map[string]any{"date": "2024-01-03", "amount": -5.0, "kind": "expense", "group": "food"})
	require.NoError(t, err)
	o, err = svc.Overview(ctx, "u1", admin, today)
	require.NoError(t, err)
	assert.InDelta(t, 15, o.Month.Outflow, 0.01, "a write changes the fingerprint")
}
