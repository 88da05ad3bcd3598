package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/yahoo"
)

// ProviderCall records one request made to MockChartSource.
type ProviderCall struct {
	Symbol string
	From   time.Time
	To     time.Time
}

type mockReply struct {
	bars []model.RawBar
	err  error
}

// MockChartSource is a scripted stand-in for yahoo.FinanceClient.
// Replies are consumed per symbol in order; once a symbol's script is exhausted
// its last reply repeats. Unscripted symbols return no data.
type MockChartSource struct {
	mu      sync.Mutex
	scripts map[string][]mockReply
	calls   []ProviderCall
}

// NewMockChartSource creates an empty mock provider.
func NewMockChartSource() *MockChartSource {
	return &MockChartSource{scripts: make(map[string][]mockReply)}
}

// WithBars appends a successful reply for symbol.
func (m *MockChartSource) WithBars(symbol string, bars ...model.RawBar) *MockChartSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[symbol] = append(m.scripts[symbol], mockReply{bars: bars})
	return m
}

// WithError appends a failing reply for symbol.
func (m *MockChartSource) WithError(symbol string, err error) *MockChartSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[symbol] = append(m.scripts[symbol], mockReply{err: err})
	return m
}

// QuerySymbolByDateRange implements fetcher.ChartSource.
// Scripted bars outside [from, to] are dropped as the real client does.
func (m *MockChartSource) QuerySymbolByDateRange(_ context.Context, symbol string, from, to time.Time) (yahoo.PriceChart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ProviderCall{Symbol: symbol, From: from, To: to})

	script := m.scripts[symbol]
	if len(script) == 0 {
		return yahoo.PriceChart{Symbol: symbol}, nil
	}
	reply := script[0]
	if len(script) > 1 {
		m.scripts[symbol] = script[1:]
	}
	if reply.err != nil {
		return yahoo.PriceChart{}, reply.err
	}

	chart := yahoo.PriceChart{Symbol: symbol, Name: symbol + " Inc.", Currency: "USD"}
	for _, bar := range reply.bars {
		if !bar.Date.Before(model.TruncateDay(from)) && !bar.Date.After(model.TruncateDay(to)) {
			chart.Bars = append(chart.Bars, bar)
		}
	}
	return chart, nil
}

// Calls returns a copy of every recorded request.
func (m *MockChartSource) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProviderCall(nil), m.calls...)
}

// CallsFor counts requests made for symbol.
func (m *MockChartSource) CallsFor(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Symbol == symbol {
			n++
		}
	}
	return n
}

// RawBar builds a complete, valid raw bar around close.
func RawBar(date string, closePrice float64) model.RawBar {
	open := closePrice
	high := closePrice * 1.01
	low := closePrice * 0.99
	adj := closePrice
	volume := int64(1000000)
	return model.RawBar{
		Date:     MustDate(date),
		Open:     &open,
		High:     &high,
		Low:      &low,
		Close:    &closePrice,
		AdjClose: &adj,
		Volume:   &volume,
	}
}

// RawBarSeries builds consecutive calendar-day bars starting at start, one per close.
func RawBarSeries(start string, closes ...float64) []model.RawBar {
	d := MustDate(start)
	bars := make([]model.RawBar, len(closes))
	for i, c := range closes {
		bars[i] = RawBar(d.AddDate(0, 0, i).Format(model.DateLayout), c)
	}
	return bars
}

// MustDate parses a "2006-01-02" date and panics on malformed test input.
func MustDate(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}
