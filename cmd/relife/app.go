package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/bdougie/relife/internal/analyzer"
	"github.com/bdougie/relife/internal/config"
	"github.com/bdougie/relife/internal/embeddings"
	"github.com/bdougie/relife/internal/logger"
	"github.com/bdougie/relife/internal/storage"
	"github.com/bdougie/relife/internal/timeline"
)

const embedCacheSize = 256

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	settings  *config.Settings
	store     storage.Store
	frames    storage.FrameStore
	ollama    *embeddings.OllamaClient
	embedder  *embeddings.Service
	timeline  *timeline.Service
	processor *analyzer.Processor
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	frames, err := openFrames(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	ollama := embeddings.NewOllamaClient(cfg.OllamaHost, cfg.EmbedModel)
	embedder, err := embeddings.NewService(ollama, cfg.EmbedDimensions, embedCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	factory := analyzer.DefaultFactory(analyzer.Options{
		OllamaHost:  cfg.OllamaHost,
		VisionModel: cfg.VisionModel,
		Logger:      log,
	})

	processor := analyzer.NewProcessor(store, frames, factory, cfg.AITimeout, log)
	if cfg.AIRateLimit > 0 {
		processor.SetRateLimit(rate.NewLimiter(rate.Limit(cfg.AIRateLimit), 1))
	}

	return &app{
		cfg:       cfg,
		logger:    log,
		settings:  config.NewSettings(cfg.DataDir),
		store:     store,
		frames:    frames,
		ollama:    ollama,
		embedder:  embedder,
		timeline:  timeline.NewService(store, frames, log),
		processor: processor,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		store, err := storage.NewPostgresStorage(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres entry store")
		return store, nil
	default:
		store, err := storage.OpenSQLite(cfg.DBPath(), log)
		if err != nil {
			return nil, err
		}
		if v, err := store.VecVersion(ctx); err == nil {
			log.Debug("sqlite-vec loaded", "version", v)
		}
		log.Info("using sqlite entry store", "path", cfg.DBPath())
		return store, nil
	}
}

func openFrames(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.FrameStore, error) {
	if cfg.FrameStore != "minio" {
		return storage.NewFileFrameStore(cfg.ScreenshotsDir())
	}

	frames, err := storage.NewMinioFrameStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
	})
	if err != nil {
		return nil, err
	}
	if err := frames.Init(ctx); err != nil {
		return nil, fmt.Errorf("init frame bucket: %w", err)
	}
	if !frames.Healthy(ctx) {
		log.Warn("minio frame store is not reachable", "endpoint", cfg.MinioEndpoint)
	}
	log.Info("using minio frame store", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	return frames, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
