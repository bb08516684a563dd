// Package memory is an in-process document store. It backs tests, the
// demo CLI backend and anything else that needs live subscriptions without
// a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

type collection struct {
	order []string
	docs  map[string]map[string]any
}

func (c *collection) clone() *collection {
	out := &collection{order: append([]string(nil), c.order...), docs: make(map[string]map[string]any, len(c.docs))}
	for id, d := range c.docs {
		out.docs[id] = d
	}
	return out
}

type Store struct {
	mu     sync.Mutex
	cols   map[string]*collection
	notify *store.Notifier
	now    func() time.Time
	wg     sync.WaitGroup
}

func New() *Store {
	return &Store{
		cols:   map[string]*collection{},
		notify: store.NewNotifier(),
		now:    time.Now,
	}
}

// WithClock replaces the write clock. Tests use it for stable timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Subscribe(ctx context.Context, path string, filters ...store.Filter) (<-chan store.Snapshot, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	changed, cancel := s.notify.Watch(path)
	feed := store.NewFeed()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		store.Pump(ctx, feed, changed, func(ctx context.Context) ([]store.Document, error) {
			return s.List(ctx, path, filters...)
		})
	}()
	return feed.C(), nil
}

func (s *Store) List(_ context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cols[path]
	if c == nil {
		return []store.Document{}, nil
	}
	out := make([]store.Document, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		if store.Matches(d, filters) {
			out = append(out, store.Document{ID: id, Data: store.CloneData(d)})
		}
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, path, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cols[path]
	if c == nil || c.docs[id] == nil {
		return store.Document{}, fmt.Errorf("%s/%s: %w", path, id, core.ErrNotFound)
	}
	return store.Document{ID: id, Data: store.CloneData(c.docs[id])}, nil
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) (string, error) {
	ids, err := s.Commit(ctx, []store.Op{{Kind: store.OpCreate, Path: path, Data: data}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *Store) Update(ctx context.Context, path, id string, partial map[string]any) error {
	_, err := s.Commit(ctx, []store.Op{{Kind: store.OpUpdate, Path: path, ID: id, Data: partial}})
	return err
}

func (s *Store) Delete(ctx context.Context, path, id string) error {
	_, err := s.Commit(ctx, []store.Op{{Kind: store.OpDelete, Path: path, ID: id}})
	return err
}

// Commit applies ops atomically: either every op lands or none does.
func (s *Store) Commit(ctx context.Context, ops []store.Op) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := store.ValidatePath(op.Path); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	staged := map[string]*collection{}
	stage := func(path string) *collection {
		if c, ok := staged[path]; ok {
			return c
		}
		c := &collection{docs: map[string]map[string]any{}}
		if cur := s.cols[path]; cur != nil {
			c = cur.clone()
		}
		staged[path] = c
		return c
	}

	now := s.now()
	ts := store.Timestamp{Seconds: now.Unix(), Nanos: int32(now.Nanosecond())}
	ids := make([]string, len(ops))
	for i, op := range ops {
		c := stage(op.Path)
		switch op.Kind {
		case store.OpCreate:
			id := op.ID
			if id == "" {
				id = store.NewID()
			}
			if _, exists := c.docs[id]; exists {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s/%s already exists", op.Path, id)
			}
			d := resolve(op.Data, ts)
			d["createdAt"] = ts
			if _, ok := d["updatedAt"]; !ok {
				d["updatedAt"] = ts
			}
			c.docs[id] = d
			c.order = append(c.order, id)
			ids[i] = id
		case store.OpUpdate:
			cur, ok := c.docs[op.ID]
			if !ok {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s/%s: %w", op.Path, op.ID, core.ErrNotFound)
			}
			if !store.Matches(cur, op.Require) {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s/%s: %w", op.Path, op.ID, store.ErrPrecondition)
			}
			merged := store.CloneData(cur)
			for k, v := range resolve(op.Data, ts) {
				merged[k] = v
			}
			c.docs[op.ID] = merged
			ids[i] = op.ID
		case store.OpDelete:
			cur, ok := c.docs[op.ID]
			if !ok {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s/%s: %w", op.Path, op.ID, core.ErrNotFound)
			}
			if !store.Matches(cur, op.Require) {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s/%s: %w", op.Path, op.ID, store.ErrPrecondition)
			}
			delete(c.docs, op.ID)
			for j, id := range c.order {
				if id == op.ID {
					c.order = append(c.order[:j:j], c.order[j+1:]...)
					break
				}
			}
			ids[i] = op.ID
		default:
			s.mu.Unlock()
			return nil, fmt.Errorf("unknown op %v", op.Kind)
		}
	}
	for path, c := range staged {
		s.cols[path] = c
	}
	s.mu.Unlock()

	for path := range staged {
		s.notify.Notify(path)
	}
	return ids, nil
}

// Close is a no-op. Subscriptions end with their contexts.
func (s *Store) Close() error {
	return nil
}

// Wait blocks until every subscription goroutine has exited.
func (s *Store) Wait() { s.wg.Wait() }

// Watchers reports how many subscriptions are listening on path.
func (s *Store) Watchers(path string) int { return s.notify.Watchers(path) }

func resolve(data map[string]any, ts store.Timestamp) map[string]any {
	out := store.CloneData(data)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range out {
		if store.IsServerTimestamp(v) {
			out[k] = ts
		}
	}
	return out
}
