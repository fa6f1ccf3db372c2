package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"walletwise/internal/backend"
	"walletwise/internal/cli"
	"walletwise/internal/log"
	"walletwise/internal/services"
	"walletwise/internal/worker"
)

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
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	if cfg.DataBackend == backend.MemoryBackend.String() {
		return errors.New("the worker needs a shared ledger: DATA_BACKEND=memory is not supported")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	ctx = log.NewContext(ctx, logger)

	logger.Info("Starting walletwise-worker", log.FieldOperation, log.OpStartup)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// The worker reads by id, so it has no use for the record cache.
	backendCfg.RedisURL, backendCfg.CacheSize = "", 0

	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer be.Ledger.Close()

	mirror, err := cli.InitMirror(ctx, logger, cfg)
	if err != nil {
		return err
	}
	if mirror == nil {
		return errors.New("GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	syncWorker := worker.NewSyncWorker(be.Ledger, mirror)

	processor := services.NewSyncProcessor(be.Ledger, syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	consumer, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		return err
	}
	if consumer != nil {
		defer consumer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	// The poller catches records whose event was never published or was lost.
	if err := processor.Start(gctx); err != nil {
		return err
	}

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeExpenseCreated(gctx, syncWorker.HandleCreated)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("message consumption: %w", err)
		})
	} else {
		logger.Info("AMQP not configured, relying on polling only")
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return processor.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Worker stopped gracefully")
	return nil
}
