// Package postgres keeps LifeSync documents in a JSONB table. Writes
// publish the changed path with pg_notify inside the writing transaction,
// and every store instance LISTENs on one connection, so subscribers in any
// process see a new snapshot once the transaction commits.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

const (
	table         = "documents"
	notifyChannel = "lifesync_documents"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	pool   *pgxpool.Pool
	tx     *TxManager
	notify *store.Notifier
	now    func() time.Time
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	listenErr error
}

// Open connects, migrates and starts the LISTEN loop. The store owns pool
// and closes it on Close.
func Open(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	s := New(pool, logger)
	if err := s.listen(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool without listening for notifications.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		pool:   pool,
		tx:     NewTxManager(pool),
		notify: store.NewNotifier(),
		now:    time.Now,
		logger: logger.With("component", "postgres-store"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	s.pool.Close()
	return nil
}

func (s *Store) listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return fmt.Errorf("listen: %w", err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(s.ctx)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Error("notification listener stopped", "error", err)
				s.mu.Lock()
				s.listenErr = fmt.Errorf("change listener: %w", err)
				s.mu.Unlock()
				// Wake every subscription so it reports the failure.
				s.notify.NotifyAll()
				return
			}
			s.notify.Notify(n.Payload)
		}
	}()
	return nil
}

func (s *Store) listenFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenErr
}

func (s *Store) Subscribe(ctx context.Context, path string, filters ...store.Filter) (<-chan store.Snapshot, error) {
	if err := checkQuery(path, filters); err != nil {
		return nil, err
	}
	changed, cancel := s.notify.Watch(path)
	feed := store.NewFeed()
	ctx, stop := context.WithCancel(ctx)
	unhook := context.AfterFunc(s.ctx, stop)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unhook()
		defer stop()
		defer cancel()
		store.Pump(ctx, feed, changed, func(ctx context.Context) ([]store.Document, error) {
			if err := s.listenFailure(); err != nil {
				return nil, err
			}
			return s.List(ctx, path, filters...)
		})
	}()
	return feed.C(), nil
}

func (s *Store) List(ctx context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	if err := checkQuery(path, filters); err != nil {
		return nil, err
	}
	b, err := listQuery(path, filters)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, path, "*")
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, mapError(err, path, "*")
		}
		data, err := store.UnmarshalData(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable document", "path", path, "id", id, "error", err)
			continue
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *Store) Get(ctx context.Context, path, id string) (store.Document, error) {
	query, args, err := psql.Select("data").From(table).Where(sq.Eq{"path": path, "id": id}).ToSql()
	if err != nil {
		return store.Document{}, fmt.Errorf("build get: %w", err)
	}
	var raw []byte
	if err := QuerierFromCtx(ctx, s.pool).QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return store.Document{}, mapError(err, path, id)
	}
	data, err := store.UnmarshalData(raw)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
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

// Commit applies ops in one transaction and notifies each touched path.
func (s *Store) Commit(ctx context.Context, ops []store.Op) ([]string, error) {
	for _, op := range ops {
		if err := store.ValidatePath(op.Path); err != nil {
			return nil, err
		}
	}
	now := s.now()
	ids := make([]string, len(ops))
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)
		for i, op := range ops {
			b, id, err := writeQuery(op, now)
			if err != nil {
				return err
			}
			query, args, err := b.ToSql()
			if err != nil {
				return fmt.Errorf("build %s: %w", op.Kind, err)
			}
			tag, err := q.Exec(ctx, query, args...)
			if err != nil {
				return mapError(err, op.Path, id)
			}
			if op.Kind != store.OpCreate && tag.RowsAffected() == 0 {
				return missed(ctx, q, op)
			}
			ids[i] = id
		}
		seen := map[string]bool{}
		for _, op := range ops {
			if seen[op.Path] {
				continue
			}
			seen[op.Path] = true
			if _, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, op.Path); err != nil {
				return fmt.Errorf("notify %s: %w", op.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// writeQuery builds the statement for op and returns the affected id.
func writeQuery(op store.Op, now time.Time) (sq.Sqlizer, string, error) {
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
			return nil, "", err
		}
		return psql.Insert(table).
			Columns("path", "id", "data", "created_at", "updated_at").
			Values(op.Path, id, sq.Expr("?::jsonb", string(raw)), now, now), id, nil

	case store.OpUpdate:
		raw, err := store.MarshalData(op.Data, now)
		if err != nil {
			return nil, "", err
		}
		where, err := opWhere(op)
		if err != nil {
			return nil, "", err
		}
		// jsonb || replaces top-level keys, matching partial-update semantics.
		b := psql.Update(table).
			Set("data", sq.Expr("data || ?::jsonb", string(raw))).
			Set("updated_at", now)
		for _, w := range where {
			b = b.Where(w)
		}
		return b, op.ID, nil

	case store.OpDelete:
		where, err := opWhere(op)
		if err != nil {
			return nil, "", err
		}
		b := psql.Delete(table)
		for _, w := range where {
			b = b.Where(w)
		}
		return b, op.ID, nil
	}
	return nil, "", fmt.Errorf("unknown op %v", op.Kind)
}

func fieldEq(f store.Filter) (sq.Sqlizer, error) {
	v, err := json.Marshal(store.PlainValue(f.Value))
	if err != nil {
		return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
	}
	return sq.Expr("data -> ? = ?::jsonb", f.Field, string(v)), nil
}

// opWhere selects the op's row, and only while its Require filters hold.
// Under read committed a concurrent writer's change is re-checked against
// these conditions before the row is touched.
func opWhere(op store.Op) ([]sq.Sqlizer, error) {
	where := []sq.Sqlizer{sq.Eq{"path": op.Path, "id": op.ID}}
	for _, f := range op.Require {
		if !store.ValidField(f.Field) {
			return nil, errors.New("invalid require field " + f.Field)
		}
		cond, err := fieldEq(f)
		if err != nil {
			return nil, err
		}
		where = append(where, cond)
	}
	return where, nil
}

// missed explains an update or delete that touched no row.
func missed(ctx context.Context, q Querier, op store.Op) error {
	if len(op.Require) > 0 {
		var exists bool
		err := q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE path = $1 AND id = $2)", op.Path, op.ID).Scan(&exists)
		if err != nil {
			return mapError(err, op.Path, op.ID)
		}
		if exists {
			return fmt.Errorf("%s/%s: %w", op.Path, op.ID, store.ErrPrecondition)
		}
	}
	return fmt.Errorf("%s/%s: %w", op.Path, op.ID, core.ErrNotFound)
}

func listQuery(path string, filters []store.Filter) (sq.SelectBuilder, error) {
	b := psql.Select("id", "data").From(table).Where(sq.Eq{"path": path})
	for _, f := range filters {
		cond, err := fieldEq(f)
		if err != nil {
			return b, err
		}
		b = b.Where(cond)
	}
	return b.OrderBy("created_at", "id"), nil
}

func checkQuery(path string, filters []store.Filter) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	for _, f := range filters {
		if !store.ValidField(f.Field) {
			return errors.New("invalid filter field " + f.Field)
		}
	}
	return nil
}
