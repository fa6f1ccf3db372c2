package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"walletwise/internal/backend"
	"walletwise/internal/cli"
	apphttp "walletwise/internal/http"
	"walletwise/internal/log"
	"walletwise/internal/services"
	"walletwise/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	ctx = log.NewContext(ctx, logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Cache cleanup failed", log.FieldError, err)
		}
	}()

	opts := []services.ServiceOption{services.WithStrictCategories(cfg.StrictCategories)}

	publisher, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		// Events are best effort; the sheets backstop catches up later.
		logger.Warn("Continuing without event publishing", log.FieldError, err)
	}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher), services.WithCloser(publisher))
	}

	svc := services.NewExpenseService(be.Ledger, services.NewResolver(be.Ledger, be.Cache), opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Service close failed", log.FieldError, err)
		}
	}()

	// Without a broker, the server mirrors to sheets itself by polling.
	var processor *services.SyncProcessor
	if publisher == nil {
		mirror, err := cli.InitMirror(ctx, logger, cfg)
		if err != nil {
			return err
		}
		if mirror != nil {
			processor = services.NewSyncProcessor(be.Ledger,
				worker.NewSyncWorker(be.Ledger, mirror),
				services.SyncProcessorConfig{PollInterval: cfg.SyncInterval, BatchSize: cfg.SyncBatchSize})
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		Logger:             logger,
	}, svc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting walletwise server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", publisher != nil,
			"sheets_poller", processor != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if processor != nil {
		if err := processor.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if processor != nil {
			if err := processor.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("sync processor stop: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
