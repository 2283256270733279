// Package app wires configuration, storage and the engine components into
// the services the server and CLI run.
package app

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/config"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/features"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/optimizer"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/performance"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/report"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/repository"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/retraining"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/service"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/storage"
	"github.com/andresuchdata/autopo-forecast/backend-go/pkg/logger"
)

type Repositories struct {
	Products repository.ProductRepository
	History  repository.SalesHistoryRepository
	Ingest   repository.IngestRepository
}

// PostgresRepositories builds the repositories backed by db
func PostgresRepositories(db *postgres.DB) Repositories {
	return Repositories{
		Products: postgres.NewProductRepository(db),
		History:  postgres.NewSalesHistoryRepository(db),
		Ingest:   postgres.NewIngestRepository(db),
	}
}

type App struct {
	Repositories
	Service    *service.OptimizationService
	Engine     *forecast.Engine
	Retraining *retraining.Service
	Reports    *report.Exporter
}

// New builds every component from cfg. Retraining state lives in Redis when
// caching is enabled, reports go to MinIO when storage is enabled and to
// cfg.Storage.LocalDir otherwise.
func New(ctx context.Context, cfg *config.Config, repos Repositories) (*App, error) {
	featureStore := features.NewStore(features.Config{StaleAfter: cfg.Cache.FeatureStaleness}, logger.Component("features"))

	forecastCache := cache.NewMemoryCache(cache.Options{
		Name:       "forecast",
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	engine := forecast.NewEngine(forecastConfig(cfg),
		forecast.WithCache(forecastCache),
		forecast.WithFeatureStore(featureStore),
		forecast.WithLogger(logger.Component("forecast")),
	)

	stateStore, err := cache.NewDurableStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to connect state store: %w", err)
	}
	retrainer, err := retraining.NewService(ctx, retrainingConfig(cfg), stateStore, logger.Component("retraining"))
	if err != nil {
		return nil, fmt.Errorf("failed to start retraining service: %w", err)
	}
	if retrainer.RestoreCoefficients(engine) {
		logger.Log.Info().Int("version", engine.Coefficients().Version).Msg("restored calibrated forecast coefficients")
	}

	objects, err := newObjectStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	exporter := report.NewExporter(objects, cfg.Storage.ReportPrefix)

	svc := service.NewOptimizationService(service.Dependencies{
		Products: repos.Products,
		History:  repos.History,
		Features: featureStore,
		Engine:   engine,
		Analyzer: performance.NewAnalyzer(performance.Config{
			HoldingRate:            cfg.Performance.HoldingRate,
			OverstockDaysThreshold: cfg.Performance.OverstockDaysThreshold,
			MinFallbackDays:        cfg.Performance.MinFallbackDays,
		}, logger.Component("performance")),
		Optimizer: optimizer.New(optimizer.Config{
			TargetStockoutRate:   cfg.Optimizer.TargetStockoutRate,
			TargetOverstockRate:  cfg.Optimizer.TargetOverstockRate,
			MinSecurityStockDays: cfg.Optimizer.MinSecurityStockDays,
			MaxSecurityStockDays: cfg.Optimizer.MaxSecurityStockDays,
			HoldingCostRate:      cfg.Optimizer.HoldingCostRate,
		}, logger.Component("optimizer")),
		Retraining: retrainer,
		Exporter:   exporter,
	}, service.Options{
		AnalysisTimeout: cfg.App.AnalysisTimeout,
		ExportReports:   cfg.App.ExportReports,
	})

	return &App{
		Repositories: repos,
		Service:      svc,
		Engine:       engine,
		Retraining:   retrainer,
		Reports:      exporter,
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	if cfg.Enabled {
		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect object storage: %w", err)
		}
		return client, nil
	}

	local, err := storage.NewLocalStorage(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	return local, nil
}

func forecastConfig(cfg *config.Config) forecast.Config {
	fc := forecast.DefaultConfig()
	if cfg.Forecast.WMAWindow > 0 {
		fc.WMAWindow = cfg.Forecast.WMAWindow
	}
	if cfg.Forecast.TrendWindow > 0 {
		fc.TrendWindow = cfg.Forecast.TrendWindow
	}
	if cfg.Forecast.MinHistoryDays > 0 {
		fc.MinHistoryDays = cfg.Forecast.MinHistoryDays
	}
	if cfg.Forecast.MAPETestDays > 0 {
		fc.MAPETestDays = cfg.Forecast.MAPETestDays
	}
	if cfg.Forecast.MinMAPEDays > 0 {
		fc.MinMAPEDays = cfg.Forecast.MinMAPEDays
	}
	if cfg.Cache.DefaultTTL > 0 {
		fc.CacheTTL = cfg.Cache.DefaultTTL
	}
	return fc
}

func retrainingConfig(cfg *config.Config) retraining.Config {
	rc := retraining.DefaultConfig()
	rc.Enabled = cfg.Retraining.Enabled
	if cfg.Retraining.MinValidationSamples > 0 {
		rc.MinValidationSamples = cfg.Retraining.MinValidationSamples
	}
	if cfg.Retraining.MinTrainingSamples > 0 {
		rc.MinTrainingSamples = cfg.Retraining.MinTrainingSamples
	}
	if cfg.Retraining.Cooldown > 0 {
		rc.Cooldown = cfg.Retraining.Cooldown
	}
	if cfg.Retraining.DegradationThreshold > 0 {
		rc.DegradationThreshold = cfg.Retraining.DegradationThreshold
	}
	if cfg.Retraining.StateKey != "" {
		rc.StateKey = cfg.Retraining.StateKey
	}
	return rc
}
