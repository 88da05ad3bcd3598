package indicator

import (
	"fmt"
	"sort"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
)

// Formula is one indicator definition. Compute receives exactly Window input
// values ending at the target date, oldest first.
type Formula struct {
	Name    string
	Window  int
	Compute func(values []float64) float64
}

// Set is the complete formula list published under one calculation version.
// Rows written under a version must only ever come from that version's Set.
type Set struct {
	Version  string
	Input    func(bar model.PriceBar) float64
	Formulas []Formula
}

// MaxWindow is the longest lookback of any formula in the set.
func (s Set) MaxWindow() int {
	maxWindow := 0
	for _, f := range s.Formulas {
		maxWindow = max(maxWindow, f.Window)
	}
	return maxWindow
}

// Formula returns the named formula.
func (s Set) Formula(name string) (Formula, error) {
	for _, f := range s.Formulas {
		if f.Name == name {
			return f, nil
		}
	}
	return Formula{}, fmt.Errorf("%w: %s in %s", apperrors.ErrUnknownIndicator, name, s.Version)
}

func standardFormulas() []Formula {
	return []Formula{
		{Name: "sma20", Window: 20, Compute: SMA},
		{Name: "sma50", Window: 50, Compute: SMA},
		{Name: "sma200", Window: 200, Compute: SMA},
		// Truncated EMA: seeded from the SMA of the first 20 of the last 80 closes.
		{Name: "ema20", Window: 80, Compute: func(v []float64) float64 { return EMA(v, 20) }},
		{Name: "rsi14", Window: 57, Compute: func(v []float64) float64 { return RSI(v, 14) }},
	}
}

var registry = map[string]Set{
	"v1": {
		Version:  "v1",
		Input:    func(bar model.PriceBar) float64 { return bar.Close },
		Formulas: standardFormulas(),
	},
	"v2": {
		Version:  "v2",
		Input:    func(bar model.PriceBar) float64 { return bar.AdjClose },
		Formulas: standardFormulas(),
	},
}

// Lookup returns the formula set registered for version.
func Lookup(version string) (Set, error) {
	set, ok := registry[version]
	if !ok {
		return Set{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownIndicatorVersion, version)
	}
	return set, nil
}

// Versions lists the registered calculation versions in order.
func Versions() []string {
	versions := make([]string, 0, len(registry))
	for v := range registry {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Compute evaluates the set over bars (ascending by date) for every date whose
// window includes a bar in [fromIdx, lastIdx]: each formula is evaluated from
// fromIdx through lastIdx+Window-1. Targets without a full window are skipped.
func (s Set) Compute(symbol string, bars []model.PriceBar, fromIdx, lastIdx int) []model.IndicatorValue {
	inputs := make([]float64, len(bars))
	for i, bar := range bars {
		inputs[i] = s.Input(bar)
	}

	var out []model.IndicatorValue
	for _, f := range s.Formulas {
		start := max(fromIdx, f.Window-1)
		reach := min(lastIdx+f.Window-1, len(bars)-1)
		for i := start; i <= reach; i++ {
			out = append(out, model.IndicatorValue{
				Symbol:  symbol,
				Date:    bars[i].Date,
				Name:    f.Name,
				Value:   f.Compute(inputs[i-f.Window+1 : i+1]),
				Version: s.Version,
			})
		}
	}
	return out
}
