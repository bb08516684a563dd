// Package factory opens the configured document store and, when an AMQP
// URL is set, the change-feed publisher that goes with it.
package factory

import (
	"context"
	"errors"
	"fmt"

	"lifesync/internal/amqp"
	"lifesync/internal/config"
	"lifesync/internal/log"
	"lifesync/internal/store"
	"lifesync/internal/store/memory"
	"lifesync/internal/store/postgres"
	"lifesync/internal/store/sqlite"
)

// Result holds the opened store and optional publisher. Cleanup closes both.
type Result struct {
	Store     store.Store
	Publisher *amqp.Client
	Cleanup   func() error
}

type Factory struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentStore)}
}

// Open builds the backend named by cfg.DataBackend.
func (f *Factory) Open(ctx context.Context, cfg *config.Config) (*Result, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.DataBackend {
	case config.BackendMemory:
		st = memory.New()
		f.logger.Info("Initialized memory backend")
	case config.BackendSQLite:
		st, err = sqlite.Open(cfg.SQLiteDBPath, sqlite.Options{
			PollInterval: cfg.SQLitePollInterval,
			Logger:       f.logger.Slog(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", log.FieldPath, cfg.SQLiteDBPath)
	case config.BackendPostgres:
		st, err = postgres.Open(ctx, postgres.PoolConfig{
			DSN:             cfg.PostgresDSN,
			MaxConns:        cfg.PostgresMaxConns,
			MinConns:        cfg.PostgresMinConns,
			MaxConnLifetime: cfg.PostgresMaxConnLifetime,
			MaxConnIdleTime: cfg.PostgresMaxConnIdleTime,
		}, f.logger.Slog())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
	}

	res := &Result{Store: st}
	if cfg.AMQPURL != "" {
		pub, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
		if err != nil {
			// Writes still work without the feed; exports just lag.
			f.logger.Warn("Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		} else {
			res.Publisher = pub
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		if res.Publisher != nil {
			errs = append(errs, res.Publisher.Close())
		}
		errs = append(errs, st.Close())
		return errors.Join(errs...)
	}
	return res, nil
}
