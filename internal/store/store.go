// Package store defines the document store LifeSync records live in.
//
// A store holds JSON-like documents under slash-separated collection paths
// (users/{uid}/{collection}). Subscriptions deliver full snapshots, never
// deltas. Adapters live in the memory, sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document is one stored record. Data holds the decoded fields including
// createdAt/updatedAt in the adapter's own timestamp shape.
type Document struct {
	ID   string
	Data map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter { return Filter{Field: field, Value: value} }

// Snapshot is the complete current result of a subscription. A snapshot with
// Err set is the last one sent before the channel closes.
type Snapshot struct {
	Docs []Document
	Err  error
}

type Store interface {
	// Subscribe streams snapshots of path until ctx is cancelled or an
	// error is delivered. A slow reader only ever sees the newest snapshot.
	Subscribe(ctx context.Context, path string, filters ...Filter) (<-chan Snapshot, error)
	List(ctx context.Context, path string, filters ...Filter) ([]Document, error)
	Get(ctx context.Context, path, id string) (Document, error)
	Create(ctx context.Context, path string, data map[string]any) (string, error)
	Update(ctx context.Context, path, id string, partial map[string]any) error
	Delete(ctx context.Context, path, id string) error
	Close() error
}

type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// ErrPrecondition is returned by Commit when an op's Require filters no
// longer match the stored document.
var ErrPrecondition = errors.New("precondition failed")

// Op is one write in an atomic batch. Creates may leave ID empty. Require
// applies to updates and deletes: the write happens only while the stored
// document matches every filter, checked inside the batch.
type Op struct {
	Kind    OpKind
	Path    string
	ID      string
	Data    map[string]any
	Require []Filter
}

// Change describes one committed write to change-feed consumers. PrevDate
// is the record's date before an update or delete, when it had one.
type Change struct {
	Path     string
	ID       string
	Op       OpKind
	PrevDate string
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	// Commit applies all ops or none and returns the id of each op.
	Commit(ctx context.Context, ops []Op) ([]string, error)
}

// serverTimestamp marks a field the store fills with its write time.
type serverTimestamp struct{}

// ServerTimestamp is replaced by the adapter's own timestamp on write.
var ServerTimestamp any = serverTimestamp{}

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// UserPath returns users/{uid}/{collection}.
func UserPath(uid, collection string) string {
	return "users/" + uid + "/" + collection
}

// ValidatePath checks that path names a collection: an odd number of
// non-empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
	}
	if len(parts)%2 == 0 {
		return fmt.Errorf("path %q names a document, not a collection", path)
	}
	return nil
}

// OwnerOf returns the uid in a users/{uid}/... path.
func OwnerOf(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 3 || parts[0] != "users" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CollectionOf returns the last segment of path.
func CollectionOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func NewID() string { return uuid.NewString() }

// Timestamp is the store's own wire shape for a point in time.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// CloneData deep-copies the map, slice and scalar values a document holds.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneData(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
