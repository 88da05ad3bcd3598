package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const chartJSON = `{"chart":{"result":[{
  "meta":{"currency":"USD","symbol":"AAPL","exchangeName":"NMS","fullExchangeName":"NasdaqGS","instrumentType":"EQUITY","longName":"Apple Inc.","gmtoffset":-18000},
  "timestamp":[1736519400,1736778600,1736865000],
  "indicators":{
    "quote":[{"open":[1.0,1.1,null],"high":[1.3,1.2,1.4],"low":[0.9,1.0,1.1],"close":[1.2,1.15,1.3],"volume":[1000,null,1200]}],
    "adjclose":[{"adjclose":[1.19,1.14,1.29]}]
  }}],"error":null}}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *FinanceClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFinanceClient(srv.URL, 5*time.Second)
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestQuerySymbolByDateRange(t *testing.T) {
	t.Run("parses bars with nulls and exchange-local dates", func(t *testing.T) {
		var gotPath, gotPeriod2 string
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotPeriod2 = r.URL.Query().Get("period2")
			w.Write([]byte(chartJSON))
		})

		chart, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-10"), day("2025-01-14"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotPath != "/v8/finance/chart/AAPL" {
			t.Errorf("path = %s", gotPath)
		}
		if gotPeriod2 != "1736899200" { // 2025-01-15 00:00 UTC
			t.Errorf("period2 = %s, want exclusive end after 2025-01-14", gotPeriod2)
		}
		if chart.Name != "Apple Inc." || chart.Currency != "USD" || chart.Exchange != "NasdaqGS" {
			t.Errorf("unexpected metadata: %+v", chart)
		}
		if len(chart.Bars) != 3 {
			t.Fatalf("expected 3 bars, got %d", len(chart.Bars))
		}
		if !chart.Bars[0].Date.Equal(day("2025-01-10")) || !chart.Bars[2].Date.Equal(day("2025-01-14")) {
			t.Errorf("unexpected dates %v .. %v", chart.Bars[0].Date, chart.Bars[2].Date)
		}
		if chart.Bars[1].Volume != nil {
			t.Error("null volume should stay nil")
		}
		if chart.Bars[2].Open != nil {
			t.Error("null open should stay nil")
		}
		if *chart.Bars[0].AdjClose != 1.19 {
			t.Errorf("adjclose = %v", *chart.Bars[0].AdjClose)
		}
	})

	t.Run("filters bars outside the requested range", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chartJSON))
		})
		chart, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-13"), day("2025-01-13"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chart.Bars) != 1 || !chart.Bars[0].Date.Equal(day("2025-01-13")) {
			t.Errorf("expected only 2025-01-13, got %+v", chart.Bars)
		}
	})

	t.Run("not found is empty without error", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
		})
		chart, err := client.QuerySymbolByDateRange(context.Background(), "GONE", day("2025-01-01"), day("2025-01-10"))
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if len(chart.Bars) != 0 {
			t.Errorf("expected no bars, got %d", len(chart.Bars))
		}
	})

	t.Run("rate limit is a status error with retry-after", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Too Many Requests"))
		})
		_, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-01"), day("2025-01-10"))
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected *StatusError, got %T %v", err, err)
		}
		if se.StatusCode != http.StatusTooManyRequests || se.RetryAfter != 2*time.Minute {
			t.Errorf("unexpected status error %+v", se)
		}
	})

	t.Run("malformed payload is a decode error", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart": {`))
		})
		_, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-01"), day("2025-01-10"))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("expected *DecodeError, got %T %v", err, err)
		}
	})

	t.Run("chart error on a 2xx response is returned", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`))
		})
		_, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-01"), day("2025-01-10"))
		var ce *ChartError
		if !errors.As(err, &ce) || !strings.Contains(err.Error(), "Invalid input") {
			t.Fatalf("expected *ChartError, got %T %v", err, err)
		}
	})

	// WHY: Yahoo wraps upstream failures and throttling in a JSON chart error
	// body. The HTTP status decides retry and rate-limit handling, so these must
	// surface as *StatusError rather than a permanent chart error.
	t.Run("chart error body on a non-2xx response is a status error", func(t *testing.T) {
		for _, code := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
				w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Internal Server Error","description":"upstream failure"}}}`))
			})
			_, err := client.QuerySymbolByDateRange(context.Background(), "AAPL", day("2025-01-01"), day("2025-01-10"))
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("HTTP %d: expected *StatusError, got %T %v", code, err, err)
			}
			if se.StatusCode != code || se.Chart == nil || se.Chart.Description != "upstream failure" {
				t.Errorf("HTTP %d: unexpected status error %+v", code, se)
			}
		}
	})
}
