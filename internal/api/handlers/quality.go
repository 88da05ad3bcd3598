package handlers

import (
	"net/http"

	"github.com/ndewijer/market-data-store/internal/api/request"
	"github.com/ndewijer/market-data-store/internal/api/response"
	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/service"
)

// QualityHandler serves the data_quality_log.
type QualityHandler struct {
	qualityService *service.QualityService
}

// NewQualityHandler creates a new QualityHandler with the provided service dependency.
func NewQualityHandler(qualityService *service.QualityService) *QualityHandler {
	return &QualityHandler{
		qualityService: qualityService,
	}
}

// Anomalies handles GET requests to list recorded anomalies, newest first.
//
// Endpoint: GET /api/quality?symbol=S&issue_type=T&limit=N
// Response: 200 OK with array of model.QualityAnomaly
// Error: 400 Bad Request if a filter is invalid
// Error: 500 Internal Server Error if retrieval fails
func (h *QualityHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := request.ParseQualityFilters(query.Get("symbol"), query.Get("issue_type"), query.Get("limit"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid filter parameters", err.Error())
		return
	}

	anomalies, err := h.qualityService.GetAnomalies(r.Context(), filters)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveQuality.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, anomalies)
}
