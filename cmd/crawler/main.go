// Command crawler runs the crawl service: an HTTP API that triggers
// per-source runs against the configured feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/api"
	"github.com/leobrain/crawler/internal/config"
	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/database"
	"github.com/leobrain/crawler/internal/id/uuid"
	"github.com/leobrain/crawler/internal/logging"
	"github.com/leobrain/crawler/internal/metrics"
	"github.com/leobrain/crawler/internal/pipeline"
	memorypub "github.com/leobrain/crawler/internal/publisher/memory"
	gcppub "github.com/leobrain/crawler/internal/publisher/pubsub"
	"github.com/leobrain/crawler/internal/render"
	"github.com/leobrain/crawler/internal/service"
	gcsstore "github.com/leobrain/crawler/internal/storage/gcs"
	localstore "github.com/leobrain/crawler/internal/storage/local"
	memorystore "github.com/leobrain/crawler/internal/storage/memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	contents, closeContents, err := buildContentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeContents()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	renderer := buildRenderer(cfg, logger)
	defer renderer.Close()

	pipe := pipeline.New(pipeline.Storage{
		Contents: contents,
		Blobs:    blobs,
		IDs:      uuid.New(),
	}, logger)

	crawler := service.New(cfg, pipe, renderer, publisher, logger)
	server := api.New(cfg.Server.Port, crawler, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsstore.New(client, gcsstore.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return localstore.New(localstore.Config{BaseDir: cfg.Storage.LocalDir})
	case "memory":
		logger.Warn("using in-memory blob store; stored bodies do not survive restarts")
		return memorystore.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildContentStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.ContentStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured; using in-memory content store")
		return database.NewMemoryStore(), func() {}, nil
	}
	store, err := database.NewContentStore(ctx, database.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("content store: %w", err)
	}
	return store, store.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("no pubsub project configured; run reports stay in memory")
		return memorypub.New(), func() {}, nil
	}
	pub, err := gcppub.New(ctx, gcppub.Config{
		ProjectID: cfg.PubSub.ProjectID,
		TopicName: cfg.PubSub.TopicName,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("publisher: %w", err)
	}
	return pub, func() { _ = pub.Close() }, nil
}

func buildRenderer(cfg config.Config, logger *zap.Logger) crawl.Renderer {
	if !cfg.Render.Enabled {
		return render.NewNoop()
	}
	return render.NewChromedp(render.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
	}, logger)
}
