// Package middleware provides HTTP middleware for request validation and processing.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/market-data-store/internal/api/response"
	"github.com/ndewijer/market-data-store/internal/validation"
)

// ValidateSymbolMiddleware validates the symbol URL parameter.
// The symbol is normalized to upper case in the route context, so handlers see
// the stored form. Returns 400 Bad Request if the symbol is missing or invalid.
//
// Example usage in router:
//
//	r.Route("/{symbol}", func(r chi.Router) {
//	    r.Use(middleware.ValidateSymbolMiddleware)
//	    r.Get("/", handler.Asset)
//	})
func ValidateSymbolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "symbol")
		if raw == "" {
			response.RespondError(w, http.StatusBadRequest, "symbol is required", "")
			return
		}

		symbol := validation.NormalizeSymbol(raw)
		if err := validation.ValidateSymbol(symbol); err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid symbol", err.Error())
			return
		}

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if key == "symbol" {
					rctx.URLParams.Values[i] = symbol
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}
