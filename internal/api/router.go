package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndewijer/market-data-store/internal/api/handlers"
	custommiddleware "github.com/ndewijer/market-data-store/internal/api/middleware"
	"github.com/ndewijer/market-data-store/internal/config"
	"github.com/ndewijer/market-data-store/internal/service"
)

// Services bundles the services the read-only API exposes.
type Services struct {
	System    *service.SystemService
	Catalog   *service.CatalogService
	Indicator *service.IndicatorService
	Update    *service.UpdateService
	Quality   *service.QualityService
}

// NewRouter creates and configures the HTTP router
func NewRouter(svc Services, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(custommiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(logger))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/asset", func(r chi.Router) {
			assetHandler := handlers.NewAssetHandler(svc.Catalog, svc.Indicator, cfg.Indicator.Versions[0])
			r.Get("/", assetHandler.Assets)

			r.Route("/{symbol}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateSymbolMiddleware)
				r.Get("/", assetHandler.Asset)
				r.Get("/price", assetHandler.Prices)
				r.Get("/indicator", assetHandler.Indicators)
				r.Get("/index", assetHandler.AssetIndices)
			})
		})

		r.Route("/index", func(r chi.Router) {
			indexHandler := handlers.NewAssetHandler(svc.Catalog, svc.Indicator, cfg.Indicator.Versions[0])
			r.Get("/{index}", indexHandler.IndexMembers)
		})

		r.Route("/update", func(r chi.Router) {
			updateHandler := handlers.NewUpdateHandler(svc.Update)
			r.Get("/", updateHandler.Runs)
			r.Get("/status", updateHandler.Status)
		})

		r.Route("/quality", func(r chi.Router) {
			qualityHandler := handlers.NewQualityHandler(svc.Quality)
			r.Get("/", qualityHandler.Anomalies)
		})
	})

	return r
}
