package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// DefaultBaseURL is the public Yahoo Finance query host.
const DefaultBaseURL = "https://query2.finance.yahoo.com"

// FinanceClient provides methods for fetching daily bars from the Yahoo Finance chart API.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewFinanceClient creates a new Yahoo Finance client.
//
// Parameters:
//   - baseURL: API host; empty means DefaultBaseURL (tests point this at httptest servers)
//   - timeout: per-request timeout applied by the HTTP client
//
// Returns:
//   - *FinanceClient: A new client instance ready for use
func NewFinanceClient(baseURL string, timeout time.Duration) *FinanceClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &FinanceClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// QuerySymbolByDateRange fetches daily bars for a symbol within [from, to] (both inclusive, by calendar day).
//
// A "Not Found" / "No data found" chart error or an empty result is reported as a chart
// without bars and a nil error: new or delisted symbols legitimately have no data.
//
// Returns:
//   - PriceChart: Parsed metadata and raw bars, nil fields where Yahoo returned null
//   - error: *StatusError for non-2xx responses (carrying any chart error body),
//     *DecodeError for malformed payloads, *ChartError for API errors on a 2xx
//     response, or the transport error
func (c *FinanceClient) QuerySymbolByDateRange(ctx context.Context, symbol string, from, to time.Time) (PriceChart, error) {
	from = model.TruncateDay(from)
	to = model.TruncateDay(to)

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	q.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	response, err := c.queryYahoo(ctx, endpoint)
	if err != nil {
		var ce *ChartError
		if errors.As(err, &ce) && ce.NoData() {
			return PriceChart{Symbol: symbol}, nil
		}
		return PriceChart{}, err
	}
	if len(response.Chart.Result) == 0 {
		return PriceChart{Symbol: symbol}, nil
	}

	chart, err := ParseChart(response.Chart.Result[0])
	if err != nil {
		return PriceChart{}, &DecodeError{Err: err}
	}
	if chart.Symbol == "" {
		chart.Symbol = symbol
	}

	inRange := chart.Bars[:0]
	for _, bar := range chart.Bars {
		if !bar.Date.Before(from) && !bar.Date.After(to) {
			inRange = append(inRange, bar)
		}
	}
	chart.Bars = inRange
	return chart, nil
}

// ParseChart converts one raw chart series into a PriceChart.
//
// Bar dates are the exchange-local calendar day of each timestamp (shifted by the
// series gmtoffset) at midnight UTC. Array entries that are missing or null
// become nil fields on the RawBar.
func ParseChart(result Result) (PriceChart, error) {
	chart := PriceChart{
		Symbol:         result.Meta.Symbol,
		Name:           result.Meta.LongName,
		Currency:       result.Meta.Currency,
		Exchange:       result.Meta.FullExchangeName,
		InstrumentType: result.Meta.InstrumentType,
	}
	if chart.Name == "" {
		chart.Name = result.Meta.Shortname
	}
	if chart.Exchange == "" {
		chart.Exchange = result.Meta.ExchangeName
	}
	if len(result.Timestamp) == 0 {
		return chart, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return PriceChart{}, fmt.Errorf("timestamps without quote data")
	}

	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	chart.Bars = make([]model.RawBar, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		chart.Bars[i] = model.RawBar{
			Date:     model.TruncateDay(time.Unix(ts+result.Meta.GmtOffset, 0)),
			Open:     at(quote.Open, i),
			High:     at(quote.High, i),
			Low:      at(quote.Low, i),
			Close:    at(quote.Close, i),
			AdjClose: at(adj, i),
			Volume:   at(quote.Volume, i),
		}
	}
	return chart, nil
}

func at[T any](values []*T, i int) *T {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// queryYahoo executes an HTTP request against the Yahoo Finance API, decodes the
// chart payload and classifies failures.
//
// The method sets required headers:
//   - User-Agent: Mimics a browser to avoid API blocking
//   - Accept: Requests JSON response format
func (c *FinanceClient) queryYahoo(ctx context.Context, endpoint string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	var response Response
	decodeErr := json.Unmarshal(data, &response)

	var chartErr *ChartError
	if decodeErr == nil {
		chartErr = response.Chart.Error
	}

	// Yahoo answers unknown symbols with 404 and a "Not Found" chart error body.
	if chartErr != nil && chartErr.NoData() {
		return response, chartErr
	}
	// Any other non-2xx is classified by status, even when the body carries a chart error.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Chart:      chartErr,
		}
	}
	if chartErr != nil {
		return response, chartErr
	}
	if decodeErr != nil {
		return Response{}, &DecodeError{Err: decodeErr}
	}

	return response, nil
}

func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
