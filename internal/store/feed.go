package store

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

// Feed is the sending side of one subscription. It keeps at most one
// pending snapshot: a newer snapshot replaces an unread older one. Feed
// assumes a single sending goroutine.
type Feed struct {
	ch chan Snapshot
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan Snapshot, 1)}
}

func (f *Feed) C() <-chan Snapshot { return f.ch }

// Offer queues s, dropping a pending unread snapshot if there is one.
func (f *Feed) Offer(s Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Fail queues a terminal error snapshot and closes the feed.
func (f *Feed) Fail(err error) {
	f.Offer(Snapshot{Err: err})
	close(f.ch)
}

func (f *Feed) Close() { close(f.ch) }

// Pump runs a subscription loop: it sends an initial snapshot, then one per
// notification on changed, until ctx ends or load fails. The feed is closed
// on return.
func Pump(ctx context.Context, f *Feed, changed <-chan struct{}, load func(context.Context) ([]Document, error)) {
	send := func() bool {
		docs, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.Close()
				return false
			}
			f.Fail(fmt.Errorf("subscription: %w", err))
			return false
		}
		f.Offer(Snapshot{Docs: docs})
		return true
	}
	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			f.Close()
			return
		case _, ok := <-changed:
			if !ok {
				f.Close()
				return
			}
			if !send() {
				return
			}
		}
	}
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !equalValues(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if sa, ok := toString(a); ok {
		sb, ok := toString(b)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// PlainValue converts named scalar types (type Status string) to their
// underlying builtin type so SQL drivers accept them as arguments.
func PlainValue(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
