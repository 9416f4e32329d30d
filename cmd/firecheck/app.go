package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/vbonduro/firecheck/internal/config"
	"github.com/vbonduro/firecheck/internal/db"
	"github.com/vbonduro/firecheck/internal/logging"
	"github.com/vbonduro/firecheck/internal/metrics"
	"github.com/vbonduro/firecheck/internal/photostore"
	"github.com/vbonduro/firecheck/internal/photostore/local"
	s3store "github.com/vbonduro/firecheck/internal/photostore/s3"
	"github.com/vbonduro/firecheck/internal/report"
	"github.com/vbonduro/firecheck/internal/service"
	"github.com/vbonduro/firecheck/internal/store"
)

// app is the wired application shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	metrics  *metrics.Metrics
	service  *service.FindingService
	cleanups []func()
}

func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.photoPath != "" {
		cfg.PhotoBackend = "local"
		cfg.PhotoPath = o.photoPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger, logCleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, cleanups: []func(){logCleanup}}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = database
	a.cleanups = append(a.cleanups, func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	})

	photoStg, err := newPhotoStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = metrics.New()
	a.service = service.NewFindingService(
		store.NewFindingStore(database),
		photoStg,
		report.NewRenderer(logger),
		a.metrics,
		logger,
		cfg.DefaultProject,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

func newPhotoStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (photostore.PhotoStore, error) {
	switch cfg.PhotoBackend {
	case "s3":
		logger.Info("using s3 photo backend", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return s3store.NewS3PhotoStore(ctx, s3store.Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Prefix:          cfg.S3.Prefix,
		}, logger)
	default:
		logger.Debug("using local photo backend", "path", cfg.PhotoPath)
		return local.NewLocalPhotoStore(cfg.PhotoPath)
	}
}
