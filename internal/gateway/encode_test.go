package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
)

func TestEncodeExpenseByKind(t *testing.T) {
	lent := encodeExpense(core.Expense{Date: "2024-01-01", Description: " pizza ", Amount: -20.004, Kind: core.KindLent, Counterparty: "Sam"})
	assert.Equal(t, "pending", lent["status"])
	assert.Equal(t, "Sam", lent["counterparty"])
	assert.Equal(t, -20.0, lent["amount"])
	assert.Equal(t, "pizza", lent["description"])
	assert.NotContains(t, lent, "settles")

	plain := encodeExpense(core.Expense{Date: "2024-01-01", Description: "x", Amount: -3, Kind: core.KindExpense})
	assert.NotContains(t, plain, "status")
	assert.NotContains(t, plain, "counterparty")
}

func TestEncodeTaskDefaults(t *testing.T) {
	data := encodeTask(core.Task{Title: "x"})
	assert.Equal(t, "open", data["status"])
	assert.Equal(t, "medium", data["priority"])
	assert.Equal(t, []any{}, data["tags"])
	assert.Equal(t, []any{}, data["subtasks"])
}

func TestEncodePatch(t *testing.T) {
	data, err := encodePatch(obfuscate.Plain{}, "u1", core.CollectionTasks, map[string]any{
		"dueDate": "2024-02-29",
		"status":  core.TaskDone,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", data["dueDate"])
	assert.Equal(t, "done", data["status"])
	assert.True(t, store.IsServerTimestamp(data["updatedAt"]))

	data, err = encodePatch(obfuscate.Plain{}, "u1", core.CollectionTasks, map[string]any{"dueDate": ""})
	require.NoError(t, err)
	assert.Equal(t, "", data["dueDate"], "empty clears the date")

	_, err = encodePatch(obfuscate.Plain{}, "u1", core.CollectionInvestments, map[string]any{"invested": -1.0})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = encodePatch(obfuscate.Plain{}, "u1", core.CollectionExpenses, map[string]any{"status": "settled"})
	assert.ErrorIs(t, err, core.ErrValidation)

	var ve *core.ValidationError
	_, err = encodePatch(obfuscate.Plain{}, "u1", core.CollectionTasks, map[string]any{"dueDate": "2024-02-30", "updatedAt": 1})
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestSettlementDescriptionFits(t *testing.T) {
	long := ""
	for len(long) < 199 {
		long += "é"
	}
	d := settlementDescription(long)
	assert.LessOrEqual(t, len(d), 200)
	assert.Equal(t, "Settlement: pizza", settlementDescription("pizza"))
}
