// Package subscriber turns a store subscription into a live, normalized view
// of one collection.
package subscriber

import (
	"context"
	"fmt"
	"sync"

	"lifesync/internal/log"
	"lifesync/internal/normalize"
	"lifesync/internal/store"
)

// View is the state of a subscription at one point. Records is always the
// complete current set. Loading stays true until the first snapshot; Err is
// set once and never cleared.
type View[T any] struct {
	Records []T
	Loading bool
	Err     error
	Seq     uint64
}

// Subscription keeps the newest View of a collection. It never retries a
// failed store subscription.
type Subscription[T any] struct {
	path    string
	mu      sync.Mutex
	view    View[T]
	updates chan View[T]
	cancel  context.CancelFunc
	done    chan struct{}
}

// Subscribe starts a subscription on path. Cancelling ctx or calling Close
// stops it and releases the store listener.
func Subscribe[T any](ctx context.Context, st store.Store, path string, decode normalize.Decoder[T], filters ...store.Filter) (*Subscription[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	snaps, err := st.Subscribe(ctx, path, filters...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}
	s := &Subscription[T]{
		path:    path,
		view:    View[T]{Records: []T{}, Loading: true},
		updates: make(chan View[T], 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, snaps, decode)
	return s, nil
}

// ForUser subscribes to users/{uid}/{collection}.
func ForUser[T any](ctx context.Context, st store.Store, uid, collection string, decode normalize.Decoder[T], filters ...store.Filter) (*Subscription[T], error) {
	return Subscribe(ctx, st, store.UserPath(uid, collection), decode, filters...)
}

func (s *Subscription[T]) run(ctx context.Context, snaps <-chan store.Snapshot, decode normalize.Decoder[T]) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSubscriber)
	defer close(s.done)
	defer close(s.updates)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			v := s.apply(snap, decode)
			if v.Err != nil {
				logger.ErrorContext(ctx, "subscription failed",
					log.FieldPath, s.path, log.FieldError, v.Err, log.FieldSeq, v.Seq)
				s.offer(v)
				s.cancel()
				return
			}
			logger.DebugContext(ctx, "snapshot",
				log.FieldPath, s.path, log.FieldRecords, len(v.Records), log.FieldSeq, v.Seq)
			s.offer(v)
		}
	}
}

func (s *Subscription[T]) apply(snap store.Snapshot, decode normalize.Decoder[T]) View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Seq++
	s.view.Loading = false
	if snap.Err != nil {
		s.view.Err = snap.Err
		return s.view
	}
	s.view.Records = normalize.All(snap.Docs, decode)
	return s.view
}

// offer replaces any unread view with v.
func (s *Subscription[T]) offer(v View[T]) {
	for {
		select {
		case s.updates <- v:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// View returns the newest state.
func (s *Subscription[T]) View() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Updates delivers each new View. A slow reader only sees the newest one.
// The channel closes when the subscription ends.
func (s *Subscription[T]) Updates() <-chan View[T] { return s.updates }

// Done is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

func (s *Subscription[T]) Path() string { return s.path }

// Close stops the subscription and waits for its goroutine.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}
