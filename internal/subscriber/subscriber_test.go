package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/core"
	"lifesync/internal/normalize"
	"lifesync/internal/store"
	"lifesync/internal/store/memory"
)

// scriptedStore hands out a channel the test writes snapshots to.
type scriptedStore struct {
	store.Store
	ch chan store.Snapshot
}

func (s *scriptedStore) Subscribe(ctx context.Context, _ string, _ ...store.Filter) (<-chan store.Snapshot, error) {
	return s.ch, nil
}

func next[T any](t *testing.T, sub *Subscription[T]) View[T] {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "updates closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
	return View[T]{}
}

func TestLoadingUntilFirstSnapshot(t *testing.T) {
	src := &scriptedStore{ch: make(chan store.Snapshot)}
	n := normalize.New("u1", time.UTC, nil)
	sub, err := ForUser(context.Background(), src, "u1", core.CollectionTasks, n.Task)
	require.NoError(t, err)
	defer sub.Close()

	v := sub.View()
	assert.True(t, v.Loading)
	assert.Empty(t, v.Records)
	assert.Equal(t, "users/u1/tasks", sub.Path())

	src.ch <- store.Snapshot{Docs: []store.Document{{ID: "t1", Data: map[string]any{"title": "a"}}}}
	v = next(t, sub)
	assert.False(t, v.Loading)
	require.Len(t, v.Records, 1)
	assert.Equal(t, "a", v.Records[0].Title)
	assert.Equal(t, uint64(1), v.Seq)
}

func TestErrorIsTerminal(t *testing.T) {
	src := &scriptedStore{ch: make(chan store.Snapshot, 2)}
	n := normalize.New("u1", time.UTC, nil)
	sub, err := ForUser(context.Background(), src, "u1", core.CollectionTasks, n.Task)
	require.NoError(t, err)

	src.ch <- store.Snapshot{Docs: []store.Document{{ID: "t1"}}}
	src.ch <- store.Snapshot{Err: errors.New("permission denied")}

	<-sub.Done()
	v := sub.View()
	assert.False(t, v.Loading)
	require.Error(t, v.Err)
	assert.Len(t, v.Records, 1, "records seen before the failure stay visible")

	var last View[core.Task]
	for u := range sub.Updates() {
		last = u
	}
	assert.Error(t, last.Err)
	sub.Close()
}

func TestLiveUpdatesFromMemoryStore(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	path := store.UserPath("u1", core.CollectionExpenses)
	n := normalize.New("u1", time.UTC, nil)

	sub, err := Subscribe(ctx, st, path, n.Expense)
	require.NoError(t, err)

	v := next(t, sub)
	assert.Empty(t, v.Records)

	_, err = st.Create(ctx, path, map[string]any{"description": "lunch", "amount": -12.5, "kind": "expense", "date": "2024-01-05"})
	require.NoError(t, err)

	for len(v.Records) == 0 {
		v = next(t, sub)
	}
	assert.Equal(t, "lunch", v.Records[0].Description)
	assert.Equal(t, "2024-01-05", v.Records[0].Date)

	sub.Close()
	st.Wait()
	assert.Zero(t, st.Watchers(path))
}

func TestSlowReaderSeesNewestView(t *testing.T) {
	src := &scriptedStore{ch: make(chan store.Snapshot)}
	n := normalize.New("u1", time.UTC, nil)
	sub, err := ForUser(context.Background(), src, "u1", core.CollectionTasks, n.Task)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		docs := make([]store.Document, i+1)
		for j := range docs {
			docs[j] = store.Document{ID: string(rune('a' + j))}
		}
		src.ch <- store.Snapshot{Docs: docs}
	}
	// The unbuffered send above returns once run has taken the snapshot;
	// wait until the fifth one has been applied.
	require.Eventually(t, func() bool { return sub.View().Seq == 5 }, 2*time.Second, 5*time.Millisecond)

	// At most the fourth view can still be pending ahead of the fifth.
	v := next(t, sub)
	if v.Seq != 5 {
		assert.Equal(t, uint64(4), v.Seq)
		v = next(t, sub)
	}
	assert.Equal(t, uint64(5), v.Seq)
	assert.Len(t, v.Records, 5)
}

func TestCancelContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedStore{ch: make(chan store.Snapshot)}
	n := normalize.New("u1", time.UTC, nil)
	sub, err := ForUser(ctx, src, "u1", core.CollectionTasks, n.Task)
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestSubscribeRejectsBadPath(t *testing.T) {
	n := normalize.New("u1", time.UTC, nil)
	_, err := Subscribe(context.Background(), memory.New(), "users/u1", n.Task)
	assert.Error(t, err)
}
