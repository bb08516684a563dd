// Command lifesync-worker consumes the change feed and keeps the exported
// tables current.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"lifesync/internal/cli"
	"lifesync/internal/log"
	"lifesync/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	rt, err := cli.Bootstrap(context.Background(), log.ComponentWorker)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := rt.Logger

	if rt.Publisher == nil {
		logger.Error("worker needs AMQP_URL to consume change events")
		_ = rt.Close()
		os.Exit(1)
	}

	exporter, err := rt.Exporter(context.Background())
	if err != nil {
		logger.Error("exporter unavailable", log.FieldError, err)
		_ = rt.Close()
		os.Exit(1)
	}
	w := worker.NewExportWorker(rt.Store, exporter, rt.Codec, rt.Config.Location(), logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(context.Context) error {
		w.Stop()
		return rt.Close()
	})

	// Events published while the worker was down are lost; a full pass
	// brings every user's current month up to date.
	if err := w.Resync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("startup resync failed", log.FieldError, err)
	}
	if err := w.Start(ctx, rt.Publisher); err != nil {
		logger.Error("start worker", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker running", "amqp_queue", rt.Config.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
}
