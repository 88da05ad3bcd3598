package yahoo

import (
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// Response represents the raw JSON response structure from the Yahoo Finance chart API (v8).
//
// The structure includes:
//   - Chart.Result: Array of result objects (typically contains one element)
//   - Chart.Result[].Meta: Symbol metadata (name, currency, exchange, UTC offset)
//   - Chart.Result[].Timestamp: Unix timestamps for each data point
//   - Chart.Result[].Indicators: Price arrays; entries are null for missing values
//   - Chart.Error: Optional error object from Yahoo API
type Response struct {
	Chart struct {
		Result []Result    `json:"result"`
		Error  *ChartError `json:"error"`
	} `json:"chart"`
}

// Result is one chart series.
type Result struct {
	Meta       Meta    `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Meta is the instrument metadata attached to a chart series.
type Meta struct {
	Currency         string `json:"currency"`
	Symbol           string `json:"symbol"`
	ExchangeName     string `json:"exchangeName"`
	FullExchangeName string `json:"fullExchangeName"`
	InstrumentType   string `json:"instrumentType"`
	LongName         string `json:"longName"`
	Shortname        string `json:"shortName"`
	GmtOffset        int64  `json:"gmtoffset"`
}

// ChartError is the error object Yahoo embeds in chart responses.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *ChartError) Error() string {
	return fmt.Sprintf("yahoo error %s: %s", e.Code, e.Description)
}

// NoData reports whether the error means the symbol has no bars in range.
func (e *ChartError) NoData() bool {
	return e.Code == "Not Found" || e.Code == "No data found"
}

// StatusError is returned for non-2xx HTTP responses.
// Chart holds the chart error Yahoo sent in the body, if any.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Chart      *ChartError
}

func (e *StatusError) Error() string {
	if e.Chart != nil {
		return fmt.Sprintf("yahoo returned HTTP %d: %s", e.StatusCode, e.Chart.Error())
	}
	return fmt.Sprintf("yahoo returned HTTP %d", e.StatusCode)
}

// DecodeError is returned when the response body is not a valid chart payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed yahoo payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PriceChart is the parsed form of a chart response.
type PriceChart struct {
	Symbol         string         `json:"symbol"`
	Name           string         `json:"name"`
	Currency       string         `json:"currency"`
	Exchange       string         `json:"exchange"`
	InstrumentType string         `json:"instrumentType"`
	Bars           []model.RawBar `json:"-"`
}
