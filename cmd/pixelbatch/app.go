package main

import (
	"log/slog"

	"pixelbatch/internal/archive"
	"pixelbatch/internal/blob"
	"pixelbatch/internal/config"
	"pixelbatch/internal/ingest"
	"pixelbatch/internal/notifications"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/raster"
	"pixelbatch/internal/scheduler"
)

// app is one assembled conversion queue.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *blob.Registry
	store     *queue.Store
	scheduler *scheduler.Scheduler
	ingestor  *ingest.Ingestor
	packager  *archive.Packager
	notifier  notifications.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	registry := blob.NewRegistry()
	store := queue.NewStore(cfg.Budget(), cfg.Output(), registry, logger)
	conv := pipeline.New(raster.Primitives(), registry, pipeline.OptionsFromConfig(cfg), logger)
	previewer := raster.Previewer{
		Side:       cfg.Conversion.PreviewDimension,
		VectorSide: cfg.Conversion.SVGDefaultDimension,
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		store:     store,
		scheduler: scheduler.New(store, conv, registry, scheduler.Options{}, logger),
		ingestor:  ingest.New(store, previewer, registry, ingest.Options{MaxFileBytes: cfg.MaxFileBytes()}, logger),
		packager:  archive.New(logger),
		notifier:  notifications.NewService(cfg),
	}
}
