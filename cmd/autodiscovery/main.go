// Package main wires together the autodiscovery service binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/api"
	"github.com/econradar/autodiscovery/internal/clock/system"
	"github.com/econradar/autodiscovery/internal/config"
	"github.com/econradar/autodiscovery/internal/contracts"
	"github.com/econradar/autodiscovery/internal/crawler"
	"github.com/econradar/autodiscovery/internal/discovery"
	"github.com/econradar/autodiscovery/internal/extractor"
	collyfetcher "github.com/econradar/autodiscovery/internal/fetcher/colly"
	probefetcher "github.com/econradar/autodiscovery/internal/fetcher/probe"
	"github.com/econradar/autodiscovery/internal/id/uuid"
	"github.com/econradar/autodiscovery/internal/logging"
	"github.com/econradar/autodiscovery/internal/metrics"
	"github.com/econradar/autodiscovery/internal/mirror"
	pubsubpublisher "github.com/econradar/autodiscovery/internal/publisher/pubsub"
	"github.com/econradar/autodiscovery/internal/registry"
	"github.com/econradar/autodiscovery/internal/runner"
	"github.com/econradar/autodiscovery/internal/storage/gcs"
	"github.com/econradar/autodiscovery/internal/validator"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	key := flag.String("key", "", "Sync a single source key instead of all")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of exiting after the sync")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *key, *serve || cfg.Server.Enabled, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, key string, serve bool, logger *zap.Logger) error {
	contractStore, err := contracts.Load(cfg.Paths.Contracts)
	if err != nil {
		return fmt.Errorf("load contracts: %w", err)
	}

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	probe := probefetcher.New(probefetcher.Config{
		Timeout:        cfg.HTTPTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: cfg.BackoffInitial(),
		BackoffMax:     cfg.BackoffMax(),
		UserAgent:      cfg.HTTP.UserAgent,
		SkipTLSVerify:  !cfg.HTTP.VerifySSL,
	}, logger.Named("probe"))

	pageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.HTTPTimeout(),
		SkipTLSVerify: !cfg.HTTP.VerifySSL,
	})

	var blobs discovery.BlobStore
	if cfg.Storage.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		defer client.Close() //nolint:errcheck // process exit path
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs store: %w", err)
		}
		blobs = store
	}

	mirrorMgr, err := mirror.New(mirror.Config{
		Root:         cfg.Paths.Mirrors,
		ObjectPrefix: cfg.Storage.Prefix,
		ContentType:  cfg.Storage.ContentType,
	}, probe, blobs, logger.Named("mirror"))
	if err != nil {
		return fmt.Errorf("mirror manager: %w", err)
	}

	regStore, err := registry.NewFileStore(cfg.Paths.Registry, clock, logger.Named("registry"))
	if err != nil {
		return fmt.Errorf("registry store: %w", err)
	}

	var publisher discovery.Publisher
	if cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		defer client.Close() //nolint:errcheck // process exit path
		publisher = pubsubpublisher.New(client.Topic(cfg.PubSub.Topic))
	}

	syncRunner, err := runner.New(runner.Options{
		Contracts:   contractStore,
		Crawler:     crawler.New(pageFetcher, extractor.New(), logger.Named("crawler")),
		Validator:   validator.New(probe, logger.Named("validator")),
		Mirror:      mirrorMgr,
		Registry:    regStore,
		Publisher:   publisher,
		Clock:       clock,
		IDs:         idGen,
		Logger:      logger.Named("runner"),
		Concurrency: cfg.Sync.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	if serve {
		return serveAPI(ctx, cfg, regStore, syncRunner, logger)
	}
	return syncOnce(ctx, syncRunner, key, logger)
}

// syncOnce runs the pipeline and prints the outcomes as JSON lines.
func syncOnce(ctx context.Context, syncRunner *runner.Runner, key string, logger *zap.Logger) error {
	var outcomes []discovery.Outcome
	if key != "" {
		outcome, err := syncRunner.SyncKey(ctx, key)
		if err != nil {
			return err
		}
		outcomes = []discovery.Outcome{outcome}
	} else {
		outcomes = syncRunner.SyncAll(ctx)
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
		}
		if err := enc.Encode(outcome); err != nil {
			logger.Warn("encode outcome failed", zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(outcomes))
	}
	return nil
}

func serveAPI(ctx context.Context, cfg config.Config, reg api.Registry, syncRunner *runner.Runner, logger *zap.Logger) error {
	apiServer := api.NewServer(reg, syncRunner, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
