package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ndewijer/market-data-store/internal/api"
	"github.com/ndewijer/market-data-store/internal/config"
	"github.com/ndewijer/market-data-store/internal/database"
	"github.com/ndewijer/market-data-store/internal/export"
	"github.com/ndewijer/market-data-store/internal/fetcher"
	"github.com/ndewijer/market-data-store/internal/quality"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/service"
	"github.com/ndewijer/market-data-store/internal/yahoo"
)

// sourceName is stored in price_data.source for bars from the chart provider.
const sourceName = "yahoo"

// app holds the wired services shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	system    *service.SystemService
	catalog   *service.CatalogService
	merge     *service.MergeService
	indicator *service.IndicatorService
	quality   *service.QualityService
	update    *service.UpdateService
}

// newApp opens the store, applies pending migrations and wires the services.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	version, err := database.Migrate(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("database ready", "path", cfg.Database.Path, "schema_version", version)

	// Create repositories
	priceRepo := repository.NewPriceRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	indicatorRepo := repository.NewIndicatorRepository(db)
	qualityRepo := repository.NewQualityRepository(db)
	updateRepo := repository.NewUpdateRepository(db)
	memberRepo := repository.NewMembershipRepository(db)

	// Create services
	catalog := service.NewCatalogService(db, assetRepo, priceRepo, memberRepo)
	merge := service.NewMergeService(db, priceRepo, assetRepo, qualityRepo)
	indicators := service.NewIndicatorService(db, priceRepo, indicatorRepo)

	client := yahoo.NewFinanceClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
	f := fetcher.New(client, fetcher.NewThrottle(cfg.Fetch.MinInterval), fetcher.Options{
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: cfg.Fetch.BackoffBase,
		BackoffMax:  cfg.Fetch.BackoffMax,
	}, logger)
	analyzer := quality.NewAnalyzer(quality.Thresholds{
		GapDays: cfg.Quality.GapThresholdDays,
		Outlier: cfg.Quality.OutlierThreshold,
	}, sourceName)

	update := service.NewUpdateService(catalog, priceRepo, assetRepo, updateRepo, merge, indicators, f, analyzer,
		service.UpdateOptions{
			StateDir:           cfg.Database.StateDir,
			StalenessThreshold: cfg.Update.StalenessThreshold,
			FailureTolerance:   cfg.Update.FailureTolerance,
			HistoryYears:       cfg.Fetch.HistoryYears,
			RefetchOverlapDays: cfg.Fetch.RefetchOverlapDays,
			IndicatorVersions:  cfg.Indicator.Versions,
		}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		system:    service.NewSystemService(db),
		catalog:   catalog,
		merge:     merge,
		indicator: indicators,
		quality:   service.NewQualityService(qualityRepo),
		update:    update,
	}, nil
}

func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (a *app) services() api.Services {
	return api.Services{
		System:    a.system,
		Catalog:   a.catalog,
		Indicator: a.indicator,
		Update:    a.update,
		Quality:   a.quality,
	}
}

func (a *app) exporter() *export.Exporter {
	return export.NewExporter(a.catalog, a.cfg.Export.Dir, a.logger)
}
