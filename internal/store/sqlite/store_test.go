package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

const expenses = "users/u1/expenses"

func openTemp(t *testing.T, poll time.Duration) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lifesync.db")
	s, err := Open(path, Options{PollInterval: poll})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func waitFor(t *testing.T, ch <-chan store.Snapshot, want int) store.Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription closed early")
			require.NoError(t, snap.Err)
			if len(snap.Docs) == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d docs", want)
		}
	}
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 0)

	id, err := s.Create(ctx, expenses, map[string]any{"description": "coffee", "amount": -2.5, "updatedAt": store.ServerTimestamp})
	require.NoError(t, err)

	doc, err := s.Get(ctx, expenses, id)
	require.NoError(t, err)
	assert.Equal(t, "coffee", doc.Data["description"])
	assert.Equal(t, -2.5, doc.Data["amount"])
	created, ok := doc.Data["createdAt"].(map[string]any)
	require.True(t, ok, "createdAt should be stored as a JSON timestamp object, got %T", doc.Data["createdAt"])
	assert.Contains(t, created, "seconds")
	assert.Contains(t, created, "nanoseconds")

	require.NoError(t, s.Update(ctx, expenses, id, map[string]any{"amount": -3.0}))
	doc, err = s.Get(ctx, expenses, id)
	require.NoError(t, err)
	assert.Equal(t, -3.0, doc.Data["amount"])
	assert.Equal(t, "coffee", doc.Data["description"])

	require.NoError(t, s.Delete(ctx, expenses, id))
	_, err = s.Get(ctx, expenses, id)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.ErrorIs(t, s.Delete(ctx, expenses, id), core.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, expenses, id, map[string]any{}), core.ErrNotFound)
}

func TestListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 0)

	for _, kind := range []string{"lent", "expense", "lent"} {
		_, err := s.Create(ctx, expenses, map[string]any{"kind": kind, "status": "pending"})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "users/u2/expenses", map[string]any{"kind": "lent"})
	require.NoError(t, err)

	docs, err := s.List(ctx, expenses, store.Eq("kind", core.KindLent))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	all, err := s.List(ctx, expenses)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "lent", all[0].Data["kind"])
	assert.Equal(t, "expense", all[1].Data["kind"])

	_, err = s.List(ctx, expenses, store.Eq("kind') OR 1=1 --", "x"))
	assert.Error(t, err)
}

func TestCommitRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 0)
	lent, err := s.Create(ctx, expenses, map[string]any{"status": "pending"})
	require.NoError(t, err)

	_, err = s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: expenses, Data: map[string]any{"kind": "settlement"}},
		{Kind: store.OpUpdate, Path: expenses, ID: "nope", Data: map[string]any{"status": "settled"}},
	})
	require.ErrorIs(t, err, core.ErrNotFound)
	docs, _ := s.List(ctx, expenses)
	assert.Len(t, docs, 1)

	ids, err := s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: expenses, Data: map[string]any{"kind": "settlement", "settles": lent}},
		{Kind: store.OpUpdate, Path: expenses, ID: lent, Data: map[string]any{"status": "settled"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	doc, _ := s.Get(ctx, expenses, lent)
	assert.Equal(t, "settled", doc.Data["status"])
}

func TestCommitRequireAcrossConnections(t *testing.T) {
	ctx := context.Background()
	a, path := openTemp(t, 0)
	b, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	lent, err := a.Create(ctx, expenses, map[string]any{"kind": "lent", "status": "pending"})
	require.NoError(t, err)

	settle := func(s *Store) error {
		_, err := s.Commit(ctx, []store.Op{
			{Kind: store.OpCreate, Path: expenses, Data: map[string]any{"kind": "settlement", "settles": lent}},
			{Kind: store.OpUpdate, Path: expenses, ID: lent, Data: map[string]any{"status": "settled"}, Require: []store.Filter{
				store.Eq("kind", "lent"),
				store.Eq("status", "pending"),
			}},
		})
		return err
	}
	errs := make(chan error, 2)
	for _, s := range []*Store{a, b} {
		go func(s *Store) { errs <- settle(s) }(s)
	}
	first, second := <-errs, <-errs
	if first != nil {
		first, second = second, first
	}
	require.NoError(t, first)
	require.ErrorIs(t, second, store.ErrPrecondition)

	docs, err := a.List(ctx, expenses)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = a.Commit(ctx, []store.Op{{Kind: store.OpDelete, Path: expenses, ID: lent, Require: []store.Filter{store.Eq("status", "pending")}}})
	assert.ErrorIs(t, err, store.ErrPrecondition)
}

func TestSubscribeSeesOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := openTemp(t, 0)

	ch, err := s.Subscribe(ctx, expenses)
	require.NoError(t, err)
	waitFor(t, ch, 0)

	_, err = s.Create(ctx, expenses, map[string]any{"description": "a"})
	require.NoError(t, err)
	waitFor(t, ch, 1)
}

func TestSubscribeSeesOtherConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader, path := openTemp(t, 20*time.Millisecond)
	writer, err := Open(path, Options{})
	require.NoError(t, err)
	defer writer.Close()

	ch, err := reader.Subscribe(ctx, expenses)
	require.NoError(t, err)
	waitFor(t, ch, 0)

	_, err = writer.Create(ctx, expenses, map[string]any{"description": "from elsewhere"})
	require.NoError(t, err)
	waitFor(t, ch, 1)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	ch, err := s.Subscribe(context.Background(), expenses)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on an open subscription")
	}
	for range ch {
	}
}

func TestListQuery(t *testing.T) {
	query, args, err := listQuery(expenses, []store.Filter{store.Eq("status", "pending")}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, data FROM documents WHERE path = ? AND json_extract(data, ?) = ? ORDER BY created_at, id", query)
	assert.Equal(t, []any{expenses, "$.status", "pending"}, args)
}
