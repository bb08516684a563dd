package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	return loc
}

func TestTimeShapes(t *testing.T) {
	want := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   any
	}{
		{"store timestamp", store.Timestamp{Seconds: want.Unix()}},
		{"json object", map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)}},
		{"underscore object", map[string]any{"_seconds": float64(want.Unix()), "_nanoseconds": float64(0)}},
		{"time", want},
		{"rfc3339", "2024-01-05T09:30:00Z"},
		{"rfc3339 offset", "2024-01-05T10:30:00+01:00"},
		{"epoch millis", float64(want.UnixMilli())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Time(tc.in, time.UTC)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %v", got)
		})
	}

	_, ok := Time("yesterday", time.UTC)
	assert.False(t, ok)
	_, ok = Time(nil, time.UTC)
	assert.False(t, ok)
}

func TestDayKeyNeverShiftsDateOnlyText(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	key, ok := DayKey("2024-01-05", la)
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", key, "date-only text must not be read as UTC midnight")
}

func TestDayKeyUsesUserLocationForInstants(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	// 2024-01-05 20:00 UTC is already Jan 6 in Tokyo.
	ts := store.Timestamp{Seconds: time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC).Unix()}

	key, ok := DayKey(ts, tokyo)
	require.True(t, ok)
	assert.Equal(t, "2024-01-06", key)

	key, ok = DayKey(ts, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", key)

	key, ok = DayKey("2024-01-05T20:00:00Z", tokyo)
	require.True(t, ok)
	assert.Equal(t, "2024-01-06", key)
}

func TestDayKeyKeepsMalformedText(t *testing.T) {
	key, ok := DayKey("31/12/2023", time.UTC)
	assert.False(t, ok)
	assert.Equal(t, "31/12/2023", key)

	key, ok = DayKey(nil, time.UTC)
	assert.True(t, ok)
	assert.Empty(t, key)
}

func TestTaskDefaults(t *testing.T) {
	n := New("u1", time.UTC, nil)
	task := n.Task(store.Document{ID: "t1", Data: map[string]any{"title": "write report"}})

	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, core.TaskOpen, task.Status)
	assert.Equal(t, core.PriorityMedium, task.Priority)
	assert.NotNil(t, task.Tags)
	assert.NotNil(t, task.TimeLogs)
	assert.NotNil(t, task.Subtasks)
	assert.Zero(t, task.TimeSpent)
	assert.Empty(t, task.Corrupt)
}

func TestTaskNestedLogs(t *testing.T) {
	n := New("u1", time.UTC, nil)
	task := n.Task(store.Document{ID: "t1", Data: map[string]any{
		"title":    "x",
		"timeLogs": []any{map[string]any{"minutes": float64(10), "date": "2024-03-01"}},
		"subtasks": []any{map[string]any{
			"id": "s1", "title": "y", "done": true,
			"timeLogs": []any{map[string]any{"minutes": float64(5), "date": store.Timestamp{Seconds: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC).Unix()}}},
		}},
		"createdAt": store.Timestamp{Seconds: 1700000000},
	}})

	require.Len(t, task.TimeLogs, 1)
	require.Len(t, task.Subtasks, 1)
	assert.True(t, task.Subtasks[0].Done)
	assert.Equal(t, "2024-03-02", task.Subtasks[0].TimeLogs[0].Date)
	assert.Equal(t, int64(1700000000), task.CreatedAt.Unix())
}

func TestExpenseMalformedFieldsAreContained(t *testing.T) {
	n := New("u1", time.UTC, nil)
	e := n.Expense(store.Document{ID: "e1", Data: map[string]any{
		"date":        "not a date",
		"description": "lunch",
		"amount":      "twelve",
		"kind":        "expense",
	}})

	assert.Equal(t, "lunch", e.Description)
	assert.Equal(t, "not a date", e.Date)
	assert.True(t, e.IsCorrupt("date"))
	assert.True(t, e.IsCorrupt("amount"))
	_, ok := e.AmountValue()
	assert.False(t, ok)
}

func TestExpenseKindInferredFromSign(t *testing.T) {
	n := New("u1", time.UTC, nil)
	assert.Equal(t, core.KindExpense, n.Expense(store.Document{Data: map[string]any{"amount": -3.0}}).Kind)
	assert.Equal(t, core.KindIncome, n.Expense(store.Document{Data: map[string]any{"amount": 3.0}}).Kind)
}

func TestNonFiniteAmountsAreCorrupt(t *testing.T) {
	n := New("u1", time.UTC, nil)
	for _, raw := range []any{"NaN", "Inf", "-Infinity", " +inf "} {
		e := n.Expense(store.Document{ID: "e1", Data: map[string]any{"date": "2024-01-05", "amount": raw}})
		assert.True(t, e.IsCorrupt("amount"), "amount %q", raw)
		assert.Zero(t, e.Amount)
		_, ok := e.AmountValue()
		assert.False(t, ok, "amount %q", raw)
		assert.Empty(t, e.Kind, "no kind is inferred from an unreadable amount")
		assert.True(t, e.IsCorrupt("kind"))
	}

	e := n.Expense(store.Document{Data: map[string]any{"amount": "NaN", "kind": "expense"}})
	assert.Equal(t, core.KindExpense, e.Kind)
	assert.False(t, e.IsCorrupt("kind"))
}

func TestInvestmentDecodesSealedAmounts(t *testing.T) {
	codec, err := obfuscate.NewSealed([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	invested, err := codec.Encode("u1", 1000)
	require.NoError(t, err)
	current, err := codec.Encode("u1", 1250.5)
	require.NoError(t, err)

	n := New("u1", time.UTC, codec)
	inv := n.Investment(store.Document{Data: map[string]any{"name": "ETF", "invested": invested, "currentValue": current}})
	assert.Equal(t, 1000.0, inv.Invested)
	assert.Equal(t, 1250.5, inv.CurrentValue)
	assert.Empty(t, inv.Corrupt)

	// Another user's normalizer cannot open the values.
	other := New("u2", time.UTC, codec).Investment(store.Document{Data: map[string]any{"invested": invested, "currentValue": 5.0}})
	assert.True(t, other.IsCorrupt("invested"))
	assert.False(t, other.IsCorrupt("currentValue"))
	_, ok := other.Gain()
	assert.False(t, ok)
}

func TestAllKeepsOrder(t *testing.T) {
	n := New("u1", time.UTC, nil)
	docs := []store.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := All(docs, n.Change)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)
}
