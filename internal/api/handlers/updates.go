package handlers

import (
	"net/http"

	"github.com/ndewijer/market-data-store/internal/api/request"
	"github.com/ndewijer/market-data-store/internal/api/response"
	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/service"
)

// UpdateHandler serves the update_log history and the staleness gate state.
type UpdateHandler struct {
	updateService *service.UpdateService
}

// NewUpdateHandler creates a new UpdateHandler with the provided service dependency.
func NewUpdateHandler(updateService *service.UpdateService) *UpdateHandler {
	return &UpdateHandler{
		updateService: updateService,
	}
}

// Runs handles GET requests to list recent update runs, newest first.
//
// Endpoint: GET /api/update?limit=N
// Response: 200 OK with array of model.UpdateRun
// Error: 400 Bad Request if limit is invalid
// Error: 500 Internal Server Error if retrieval fails
func (h *UpdateHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit, err := request.ParseLimit(r.URL.Query().Get("limit"), request.DefaultRunLimit, request.MaxRunLimit)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	runs, err := h.updateService.GetRuns(r.Context(), limit)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveRuns.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, runs)
}

// Status handles GET requests for the last success time, whether the next run is
// due and the newest run.
//
// Endpoint: GET /api/update/status
// Response: 200 OK with model.UpdateStatus
// Error: 500 Internal Server Error if the state cannot be read
func (h *UpdateHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.updateService.Status(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveRuns.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, status)
}
