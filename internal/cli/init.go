// Package cli holds the start-up steps lifesync and lifesync-worker share:
// env and config loading, logging, store and exporter wiring, and signal
// handling.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lifesync/internal/amqp"
	"lifesync/internal/auth"
	"lifesync/internal/blob"
	"lifesync/internal/config"
	"lifesync/internal/export"
	"lifesync/internal/export/sheets"
	"lifesync/internal/gateway"
	"lifesync/internal/log"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
	"lifesync/internal/store/factory"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and makes it the slog
// default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is everything a command needs after start-up.
type Runtime struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     store.Store
	Publisher *amqp.Client
	Codec     obfuscate.Codec

	cleanup func() error
}

// Bootstrap loads config, opens the store and builds the codec.
func Bootstrap(ctx context.Context, component string) (*Runtime, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg, component)

	codec, err := obfuscate.New(cfg.ObfuscationMode, []byte(cfg.ObfuscationSecret))
	if err != nil {
		return nil, err
	}
	if codec.Mode() == obfuscate.ModePlain {
		logger.Warn("investment amounts are stored unencoded", "obfuscation_mode", obfuscate.ModePlain)
	}

	res, err := factory.New(logger).Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Store:     res.Store,
		Publisher: res.Publisher,
		Codec:     codec,
		cleanup:   res.Cleanup,
	}, nil
}

func (r *Runtime) Close() error {
	if r.cleanup == nil {
		return nil
	}
	return r.cleanup()
}

func (r *Runtime) Auth() (*auth.Local, error) {
	tokens, err := auth.NewTokenManager(r.Config.JWTSecret, r.Config.SessionTTL)
	if err != nil {
		return nil, err
	}
	return auth.NewLocal(r.Store, tokens, auth.Options{
		SessionFile: r.Config.SessionFile,
		BcryptCost:  r.Config.BcryptCost,
		Logger:      r.Logger,
	}), nil
}

// Gateway returns the mutation gateway of uid.
func (r *Runtime) Gateway(uid string) (*gateway.Gateway, error) {
	blobs, err := blob.NewFS(r.Config.BlobDir)
	if err != nil {
		return nil, err
	}
	opts := []gateway.Option{
		gateway.WithCodec(r.Codec),
		gateway.WithBlobs(blobs),
		gateway.WithLogger(r.Logger),
		gateway.WithLocation(r.Config.Location()),
		gateway.WithStepTimeout(r.Config.StepTimeout),
	}
	if r.Publisher != nil {
		opts = append(opts, gateway.WithPublisher(r.Publisher))
	}
	return gateway.New(r.Store, uid, opts...), nil
}

// Exporter writes to Google Sheets when a spreadsheet is configured and to
// CSV files in ExportDir otherwise.
func (r *Runtime) Exporter(ctx context.Context) (export.Exporter, error) {
	if r.Config.GoogleSpreadsheetID == "" {
		return export.NewCSV(r.Config.ExportDir)
	}
	return sheets.New(ctx, sheets.Config{
		SpreadsheetID:   r.Config.GoogleSpreadsheetID,
		CredentialsJSON: r.Config.GoogleCredentialsJSON,
		CredentialsFile: r.Config.GoogleCredentialsFile,
	}, r.Logger)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After
// the signal, cleanup runs with at most timeout to finish; done closes when
// it has returned or the timeout passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context) error) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		finished := make(chan error, 1)
		go func() {
			if cleanup == nil {
				finished <- nil
				return
			}
			finished <- cleanup(shutdownCtx)
		}()

		select {
		case err := <-finished:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Shutdown cleanup failed", log.FieldError, err)
				return
			}
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ended.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
