package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/market-data-store/internal/api/request"
	"github.com/ndewijer/market-data-store/internal/api/response"
	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/service"
)

// AssetHandler handles HTTP requests for asset endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// to the catalog and indicator services.
type AssetHandler struct {
	catalogService   *service.CatalogService
	indicatorService *service.IndicatorService
	defaultVersion   string
}

// NewAssetHandler creates a new AssetHandler. defaultVersion is used for
// indicator requests that do not name a calculation version.
func NewAssetHandler(catalogService *service.CatalogService, indicatorService *service.IndicatorService, defaultVersion string) *AssetHandler {
	return &AssetHandler{
		catalogService:   catalogService,
		indicatorService: indicatorService,
		defaultVersion:   defaultVersion,
	}
}

// Assets handles GET requests to retrieve the whole catalog.
//
// Endpoint: GET /api/asset
// Response: 200 OK with array of model.Asset
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) Assets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.catalogService.GetAssets(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveAssets.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, assets)
}

// Asset handles GET requests to retrieve one catalog row with its coverage.
//
// Endpoint: GET /api/asset/{symbol}
// Response: 200 OK with model.Asset
// Error: 400 Bad Request if the symbol is invalid (validated by middleware)
// Error: 404 Not Found if the asset is not in the catalog
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) Asset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.catalogService.GetAsset(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveAsset)
		return
	}

	response.RespondJSON(w, http.StatusOK, asset)
}

// Prices handles GET requests to retrieve stored daily bars.
//
// Endpoint: GET /api/asset/{symbol}/price
// Query Parameters:
//   - start_date: optional, YYYY-MM-DD, inclusive
//   - end_date: optional, YYYY-MM-DD, inclusive
//
// Response: 200 OK with array of model.PriceBar, oldest first
// Error: 400 Bad Request if the dates are malformed or reversed
// Error: 404 Not Found if the asset is not in the catalog
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) Prices(w http.ResponseWriter, r *http.Request) {
	from, to, err := request.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	bars, err := h.catalogService.GetPrices(r.Context(), chi.URLParam(r, "symbol"), from, to)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrievePrices)
		return
	}

	response.RespondJSON(w, http.StatusOK, bars)
}

// AssetIndices handles GET requests for the indices an asset currently belongs to.
//
// Endpoint: GET /api/asset/{symbol}/index
// Response: 200 OK with array of model.IndexMembership, ordered by index name
// Error: 404 Not Found if the asset is not in the catalog
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) AssetIndices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if _, err := h.catalogService.GetAsset(r.Context(), symbol); err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveAsset)
		return
	}

	memberships, err := h.catalogService.GetAssetIndices(r.Context(), symbol)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveIndex)
		return
	}

	response.RespondJSON(w, http.StatusOK, memberships)
}

// IndexMembers handles GET requests for the constituents of an index.
//
// Endpoint: GET /api/index/{index}
// Query Parameters:
//   - include_inactive: optional, "true" adds former constituents
//
// Response: 200 OK with array of model.IndexMembership, ordered by symbol
// Error: 400 Bad Request if the index name is invalid
// Error: 404 Not Found if the index has never had a member
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) IndexMembers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	members, err := h.catalogService.GetIndexMembers(r.Context(), chi.URLParam(r, "index"), includeInactive)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveIndex)
		return
	}

	response.RespondJSON(w, http.StatusOK, members)
}

// Indicators handles GET requests to retrieve cached indicator values.
//
// Endpoint: GET /api/asset/{symbol}/indicator
// Query Parameters:
//   - name: required, e.g. sma20
//   - version: optional calculation version, defaults to the configured one
//   - start_date, end_date: optional, YYYY-MM-DD, inclusive
//
// Response: 200 OK with array of model.IndicatorValue, oldest first
// Error: 400 Bad Request if name is missing or name/version/dates are invalid
// Error: 404 Not Found if the asset is not in the catalog
// Error: 500 Internal Server Error if retrieval fails
func (h *AssetHandler) Indicators(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := strings.ToLower(strings.TrimSpace(query.Get("name")))
	if name == "" {
		response.RespondError(w, http.StatusBadRequest, "name is required", "")
		return
	}
	version := query.Get("version")
	if version == "" {
		version = h.defaultVersion
	}
	from, to, err := request.ParseDateRange(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	symbol := chi.URLParam(r, "symbol")
	if _, err := h.catalogService.GetAsset(r.Context(), symbol); err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveAsset)
		return
	}

	values, err := h.indicatorService.GetValues(r.Context(), symbol, name, version, from, to)
	if err != nil {
		respondServiceError(w, err, apperrors.ErrFailedToRetrieveIndicators)
		return
	}

	response.RespondJSON(w, http.StatusOK, values)
}
