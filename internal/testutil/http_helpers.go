package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

// NewRequestWithURLParams creates an HTTP request carrying chi URL parameters,
// for handlers that read chi.URLParam without going through the router.
//
// Example:
//
//	req := testutil.NewRequestWithURLParams(
//	    http.MethodGet,
//	    "/api/asset/AAPL",
//	    map[string]string{"symbol": "AAPL"},
//	)
func NewRequestWithURLParams(method, path string, params map[string]string) *http.Request {
	return withURLParams(httptest.NewRequest(method, path, nil), params)
}

// NewRequestWithQueryParams creates an HTTP request with an encoded query string.
func NewRequestWithQueryParams(method, path string, queryParams map[string]string) *http.Request {
	return withQuery(httptest.NewRequest(method, path, nil), queryParams)
}

// NewSymbolRequest creates a GET request for a per-symbol route such as
// /api/asset/{symbol}/price, with the symbol URL parameter set and query encoded.
//
// Example:
//
//	req := testutil.NewSymbolRequest("AAPL", "/price", map[string]string{"start_date": "2025-01-07"})
func NewSymbolRequest(symbol, suffix string, query map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/asset/"+symbol+suffix, nil)
	return withQuery(withURLParams(req, map[string]string{"symbol": symbol}), query)
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	if len(params) == 0 {
		return req
	}
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withQuery(req *http.Request, query map[string]string) *http.Request {
	if len(query) == 0 {
		return req
	}
	q := req.URL.Query()
	for key, value := range query {
		q.Add(key, value)
	}
	req.URL.RawQuery = q.Encode()
	return req
}
