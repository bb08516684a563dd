// Package sqlite keeps LifeSync documents in a single SQLite table with a
// JSON data column. Live subscriptions are driven by in-process write
// notifications plus a PRAGMA data_version poll that catches writes from
// other processes sharing the file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"lifesync/internal/core"
	"lifesync/internal/store"

	_ "modernc.org/sqlite"
)

const table = "documents"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Options struct {
	// PollInterval is how often other writers are checked for. Zero disables
	// polling.
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Store struct {
	db     *sql.DB
	notify *store.Notifier
	now    func() time.Time
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func Open(dbPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	// Immediate transactions take the write lock on begin, so a read-check-
	// write batch cannot interleave with another writer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:     db,
		notify: store.NewNotifier(),
		now:    time.Now,
		logger: logger.With("component", "sqlite-store"),
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.PollInterval > 0 {
		conn, err := db.Conn(ctx)
		if err != nil {
			cancel()
			db.Close()
			return nil, fmt.Errorf("open poll connection: %w", err)
		}
		var version int64
		if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
			conn.Close()
			cancel()
			db.Close()
			return nil, fmt.Errorf("read data_version: %w", err)
		}
		s.wg.Add(1)
		go s.pollDataVersion(ctx, conn, version, opts.PollInterval)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) Subscribe(ctx context.Context, path string, filters ...store.Filter) (<-chan store.Snapshot, error) {
	if err := checkQuery(path, filters); err != nil {
		return nil, err
	}
	changed, cancel := s.notify.Watch(path)
	feed := store.NewFeed()
	// Closing the store ends every subscription.
	ctx, stop := context.WithCancel(ctx)
	unhook := context.AfterFunc(s.ctx, stop)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unhook()
		defer stop()
		defer cancel()
		store.Pump(ctx, feed, changed, func(ctx context.Context) ([]store.Document, error) {
			return s.List(ctx, path, filters...)
		})
	}()
	return feed.C(), nil
}

func (s *Store) List(ctx context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	if err := checkQuery(path, filters); err != nil {
		return nil, err
	}
	query, args, err := listQuery(path, filters).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		data, err := store.UnmarshalData(raw)
		if err != nil {
			// One unreadable row must not hide the rest of the collection.
			s.logger.WarnContext(ctx, "skipping undecodable document", "path", path, "id", id, "error", err)
			continue
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *Store) Get(ctx context.Context, path, id string) (store.Document, error) {
	return get(ctx, s.db, path, id)
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

// Commit applies ops in one transaction.
func (s *Store) Commit(ctx context.Context, ops []store.Op) (ids []string, err error) {
	for _, op := range ops {
		if err := store.ValidatePath(op.Path); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	now := s.now()
	ids = make([]string, len(ops))
	for i, op := range ops {
		id, err := apply(ctx, tx, op, now)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return nil, fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
			}
			return nil, err
		}
		ids[i] = id
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	notified := map[string]bool{}
	for _, op := range ops {
		if !notified[op.Path] {
			notified[op.Path] = true
			s.notify.Notify(op.Path)
		}
	}
	return ids, nil
}

func apply(ctx context.Context, q querier, op store.Op, now time.Time) (string, error) {
	switch op.Kind {
	case store.OpCreate:
		id := op.ID
		if id == "" {
			id = store.NewID()
		}
		data := store.CloneData(op.Data)
		if data == nil {
			data = map[string]any{}
		}
		data["createdAt"] = store.ServerTimestamp
		if _, ok := data["updatedAt"]; !ok {
			data["updatedAt"] = store.ServerTimestamp
		}
		raw, err := store.MarshalData(data, now)
		if err != nil {
			return "", err
		}
		query, args, err := sq.Insert(table).
			Columns("path", "id", "data", "created_at", "updated_at").
			Values(op.Path, id, string(raw), now.UnixNano(), now.UnixNano()).
			ToSql()
		if err != nil {
			return "", fmt.Errorf("build insert: %w", err)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("insert %s/%s: %w", op.Path, id, err)
		}
		return id, nil

	case store.OpUpdate:
		cur, err := get(ctx, q, op.Path, op.ID)
		if err != nil {
			return "", err
		}
		if !store.Matches(cur.Data, op.Require) {
			return "", fmt.Errorf("%s/%s: %w", op.Path, op.ID, store.ErrPrecondition)
		}
		for k, v := range op.Data {
			cur.Data[k] = v
		}
		raw, err := store.MarshalData(cur.Data, now)
		if err != nil {
			return "", err
		}
		query, args, err := sq.Update(table).
			Set("data", string(raw)).
			Set("updated_at", now.UnixNano()).
			Where(sq.Eq{"path": op.Path, "id": op.ID}).
			ToSql()
		if err != nil {
			return "", fmt.Errorf("build update: %w", err)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("update %s/%s: %w", op.Path, op.ID, err)
		}
		return op.ID, nil

	case store.OpDelete:
		if len(op.Require) > 0 {
			cur, err := get(ctx, q, op.Path, op.ID)
			if err != nil {
				return "", err
			}
			if !store.Matches(cur.Data, op.Require) {
				return "", fmt.Errorf("%s/%s: %w", op.Path, op.ID, store.ErrPrecondition)
			}
		}
		query, args, err := sq.Delete(table).Where(sq.Eq{"path": op.Path, "id": op.ID}).ToSql()
		if err != nil {
			return "", fmt.Errorf("build delete: %w", err)
		}
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return "", fmt.Errorf("delete %s/%s: %w", op.Path, op.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", fmt.Errorf("%s/%s: %w", op.Path, op.ID, core.ErrNotFound)
		}
		return op.ID, nil
	}
	return "", fmt.Errorf("unknown op %v", op.Kind)
}

func get(ctx context.Context, q querier, path, id string) (store.Document, error) {
	query, args, err := sq.Select("data").From(table).Where(sq.Eq{"path": path, "id": id}).ToSql()
	if err != nil {
		return store.Document{}, fmt.Errorf("build get: %w", err)
	}
	var raw []byte
	if err := q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, fmt.Errorf("%s/%s: %w", path, id, core.ErrNotFound)
		}
		return store.Document{}, fmt.Errorf("get %s/%s: %w", path, id, err)
	}
	data, err := store.UnmarshalData(raw)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

func listQuery(path string, filters []store.Filter) sq.SelectBuilder {
	b := sq.Select("id", "data").From(table).Where(sq.Eq{"path": path})
	for _, f := range filters {
		b = b.Where(sq.Expr("json_extract(data, ?) = ?", "$."+f.Field, store.PlainValue(f.Value)))
	}
	return b.OrderBy("created_at", "id")
}

func checkQuery(path string, filters []store.Filter) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	for _, f := range filters {
		if !store.ValidField(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
	}
	return nil
}

// pollDataVersion watches PRAGMA data_version on a dedicated connection; the
// value changes whenever another connection commits.
func (s *Store) pollDataVersion(ctx context.Context, conn *sql.Conn, last int64, every time.Duration) {
	defer s.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var v int64
			if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("data_version poll failed", "error", err)
				}
				continue
			}
			if v != last {
				last = v
				s.notify.NotifyAll()
			}
		}
	}
}
