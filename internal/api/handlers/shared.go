package handlers

import (
	"errors"
	"net/http"

	"github.com/ndewijer/market-data-store/internal/api/response"
	"github.com/ndewijer/market-data-store/internal/apperrors"
)

// respondServiceError maps a service error to an HTTP error response.
// Lookup misses become 404 and rejected input becomes 400. Anything else is
// reported as 500 with fallback as the message.
func respondServiceError(w http.ResponseWriter, err error, fallback error) {
	switch {
	case errors.Is(err, apperrors.ErrAssetNotFound):
		response.RespondError(w, http.StatusNotFound, apperrors.ErrAssetNotFound.Error(), err.Error())
	case errors.Is(err, apperrors.ErrUpdateRunNotFound):
		response.RespondError(w, http.StatusNotFound, apperrors.ErrUpdateRunNotFound.Error(), err.Error())
	case errors.Is(err, apperrors.ErrIndexNotFound):
		response.RespondError(w, http.StatusNotFound, apperrors.ErrIndexNotFound.Error(), err.Error())
	case errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrInvalidSymbol),
		errors.Is(err, apperrors.ErrUnknownIndicator),
		errors.Is(err, apperrors.ErrUnknownIndicatorVersion),
		errors.Is(err, apperrors.ErrInvalidIssueType),
		errors.Is(err, apperrors.ErrInvalidIndexName):
		response.RespondError(w, http.StatusBadRequest, "invalid request", err.Error())
	default:
		response.RespondError(w, http.StatusInternalServerError, fallback.Error(), err.Error())
	}
}
