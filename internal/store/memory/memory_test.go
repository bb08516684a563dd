package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

const tasks = "users/u1/tasks"

func next(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return store.Snapshot{}
}

func TestCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, tasks, map[string]any{"title": "a", "updatedAt": store.ServerTimestamp})
	if err != nil || id == "" {
		t.Fatalf("create: id=%q err=%v", id, err)
	}
	doc, err := s.Get(ctx, tasks, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := doc.Data["createdAt"].(store.Timestamp); !ok {
		t.Fatalf("createdAt should be a store timestamp, got %T", doc.Data["createdAt"])
	}
	if _, ok := doc.Data["updatedAt"].(store.Timestamp); !ok {
		t.Fatalf("server timestamp sentinel not resolved: %T", doc.Data["updatedAt"])
	}

	if err := s.Update(ctx, tasks, id, map[string]any{"status": "done"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = s.Get(ctx, tasks, id)
	if doc.Data["title"] != "a" || doc.Data["status"] != "done" {
		t.Fatalf("update should merge fields, got %v", doc.Data)
	}

	if err := s.Delete(ctx, tasks, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, tasks, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, tasks, id, map[string]any{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, tasks, map[string]any{"tags": []any{"x"}})
	doc, _ := s.Get(ctx, tasks, id)
	doc.Data["tags"].([]any)[0] = "mutated"

	again, _ := s.Get(ctx, tasks, id)
	if again.Data["tags"].([]any)[0] != "x" {
		t.Fatalf("stored document was mutated through a read")
	}
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, tasks, map[string]any{"title": "keep"})

	_, err := s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: tasks, Data: map[string]any{"title": "new"}},
		{Kind: store.OpUpdate, Path: tasks, ID: "missing", Data: map[string]any{"x": 1}},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	docs, _ := s.List(ctx, tasks)
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("failed batch must leave no trace, got %v", docs)
	}

	ids, err := s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: tasks, Data: map[string]any{"title": "new"}},
		{Kind: store.OpUpdate, Path: tasks, ID: id, Data: map[string]any{"title": "changed"}},
	})
	if err != nil || len(ids) != 2 || ids[1] != id {
		t.Fatalf("commit: ids=%v err=%v", ids, err)
	}
}

func TestCommitChecksRequire(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, tasks, map[string]any{"status": "done"})

	_, err := s.Commit(ctx, []store.Op{
		{Kind: store.OpCreate, Path: tasks, Data: map[string]any{"title": "new"}},
		{Kind: store.OpUpdate, Path: tasks, ID: id, Data: map[string]any{"status": "archived"}, Require: []store.Filter{store.Eq("status", "todo")}},
	})
	if !errors.Is(err, store.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if docs, _ := s.List(ctx, tasks); len(docs) != 1 || docs[0].Data["status"] != "done" {
		t.Fatalf("rejected batch must leave no trace, got %v", docs)
	}

	_, err = s.Commit(ctx, []store.Op{{Kind: store.OpDelete, Path: tasks, ID: id, Require: []store.Filter{store.Eq("status", "todo")}}})
	if !errors.Is(err, store.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition on delete, got %v", err)
	}

	_, err = s.Commit(ctx, []store.Op{{Kind: store.OpUpdate, Path: tasks, ID: id, Data: map[string]any{"status": "archived"}, Require: []store.Filter{store.Eq("status", "done")}}})
	if err != nil {
		t.Fatalf("matching require: %v", err)
	}
	if doc, _ := s.Get(ctx, tasks, id); doc.Data["status"] != "archived" {
		t.Fatalf("update not applied, got %v", doc.Data)
	}
}

func TestSubscribeDeliversFullSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	ch, err := s.Subscribe(ctx, tasks, store.Eq("status", "open"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if first := next(t, ch); len(first.Docs) != 0 {
		t.Fatalf("expected empty first snapshot, got %v", first.Docs)
	}

	_, _ = s.Create(ctx, tasks, map[string]any{"status": "open"})
	if snap := next(t, ch); len(snap.Docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(snap.Docs))
	}
	_, _ = s.Create(ctx, tasks, map[string]any{"status": "done"})
	_, _ = s.Create(ctx, tasks, map[string]any{"status": "open"})

	// Intermediate states may be dropped; the newest one must arrive.
	deadline := time.After(2 * time.Second)
	for seen := false; !seen; {
		select {
		case snap := <-ch:
			seen = len(snap.Docs) == 2
		case <-deadline:
			t.Fatal("never saw the latest snapshot")
		}
	}

	cancel()
	s.Wait()
	for range ch {
	}
	if n := s.notify.Watchers(tasks); n != 0 {
		t.Fatalf("listener leaked: %d watchers", n)
	}
}

func TestSubscribeRejectsDocumentPath(t *testing.T) {
	if _, err := New().Subscribe(context.Background(), "users/u1"); err == nil {
		t.Fatal("expected path error")
	}
}
