//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

// Run with: LIFESYNC_TEST_POSTGRES_DSN=postgres://... go test -tags=integration ./internal/store/postgres
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LIFESYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIFESYNC_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, PoolConfig{DSN: dsn, MaxConns: 4}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegrationSettlementBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := store.UserPath(store.NewID(), core.CollectionExpenses)

	lent, err := s.Create(ctx, path, map[string]any{"kind": "lent", "status": "pending", "amount": -20})
	require.NoError(t, err)

	_, err = s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: path, Data: map[string]any{"kind": "settlement", "settles": lent}},
		{Kind: store.OpUpdate, Path: path, ID: "missing", Data: map[string]any{"status": "settled"}},
	})
	require.ErrorIs(t, err, core.ErrNotFound)
	docs, err := s.List(ctx, path)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "rolled back batch must not leave the settlement behind")

	_, err = s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: path, Data: map[string]any{"kind": "settlement", "settles": lent}},
		{Kind: store.OpUpdate, Path: path, ID: lent, Data: map[string]any{"status": "settled"}},
	})
	require.NoError(t, err)

	pending, err := s.List(ctx, path, store.Eq("status", core.LendPending))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIntegrationSubscribeAcrossInstances(t *testing.T) {
	reader := openTestStore(t)
	writer := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	path := store.UserPath(store.NewID(), core.CollectionTasks)

	ch, err := reader.Subscribe(ctx, path)
	require.NoError(t, err)
	first := <-ch
	require.NoError(t, first.Err)
	assert.Empty(t, first.Docs)

	_, err = writer.Create(ctx, path, map[string]any{"title": "hello"})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.NoError(t, snap.Err)
		assert.Len(t, snap.Docs, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after remote write")
	}
}
