package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// Thresholds configures anomaly detection.
type Thresholds struct {
	GapDays int     // calendar days between consecutive bars before a gap is reported
	Outlier float64 // relative close-to-close move before a bar is an outlier
}

// Analyzer annotates freshly fetched bars with quality flags and anomaly records.
type Analyzer struct {
	thresholds Thresholds
	source     string
	now        func() time.Time
}

// NewAnalyzer creates an Analyzer. source is stamped on every produced bar.
func NewAnalyzer(thresholds Thresholds, source string) *Analyzer {
	return &Analyzer{
		thresholds: thresholds,
		source:     source,
		now:        time.Now,
	}
}

// WithClock overrides the detection timestamp source.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Analyze inspects newBars against the stored history tail for symbol.
//
// The comparison chain is the latest prior bar strictly before the first new date,
// followed by the complete new bars in date order. Incomplete bars produce an
// incomplete anomaly and are not returned. Every returned bar carries exactly one
// flag: outlier wins over gap when both apply, and both anomalies are recorded.
//
// Parameters:
//   - symbol: Instrument symbol
//   - newBars: Provider bars in any order; duplicate dates keep the last occurrence
//   - priorTail: Stored bars for the symbol, in any order
//
// Returns:
//   - []model.PriceBar: Annotated complete bars in ascending date order
//   - []model.QualityAnomaly: Detected anomalies in date order
func (a *Analyzer) Analyze(symbol string, newBars []model.RawBar, priorTail []model.PriceBar) ([]model.PriceBar, []model.QualityAnomaly) {
	detectedAt := a.now().UTC()
	bars := normalize(newBars)
	if len(bars) == 0 {
		return nil, nil
	}

	var (
		annotated []model.PriceBar
		anomalies []model.QualityAnomaly
	)

	prev, hasPrev := latestBefore(priorTail, bars[0].Date)
	for _, raw := range bars {
		if missing := raw.MissingFields(); len(missing) > 0 {
			anomalies = append(anomalies, model.QualityAnomaly{
				Symbol:      symbol,
				Date:        raw.Date,
				IssueType:   model.IssueIncomplete,
				Severity:    model.SeverityHigh,
				Description: "missing fields: " + strings.Join(missing, ", "),
				DetectedAt:  detectedAt,
			})
			continue
		}

		bar := raw.ToPriceBar(symbol, a.source)
		if hasPrev {
			if delta := daysBetween(prev.Date, bar.Date); delta > a.thresholds.GapDays {
				bar.Quality = model.QualityGap
				anomalies = append(anomalies, model.QualityAnomaly{
					Symbol:      symbol,
					Date:        bar.Date,
					IssueType:   model.IssueGap,
					Severity:    GapSeverity(delta),
					Description: fmt.Sprintf("gap of %d days since %s", delta, prev.DateKey()),
					DetectedAt:  detectedAt,
				})
			}
			if prev.Close != 0 {
				change := bar.Close/prev.Close - 1
				if math.Abs(change) > a.thresholds.Outlier {
					bar.Quality = model.QualityOutlier
					anomalies = append(anomalies, model.QualityAnomaly{
						Symbol:    symbol,
						Date:      bar.Date,
						IssueType: model.IssueOutlier,
						Severity:  OutlierSeverity(change, a.thresholds.Outlier),
						Description: fmt.Sprintf("close moved %+.2f%% from %g to %g",
							change*100, prev.Close, bar.Close),
						DetectedAt: detectedAt,
					})
				}
			}
		}

		annotated = append(annotated, bar)
		prev, hasPrev = bar, true
	}

	return annotated, anomalies
}

// GapSeverity maps a gap length in calendar days to a severity. It never
// decreases as the gap grows.
func GapSeverity(days int) model.Severity {
	switch {
	case days <= 14:
		return model.SeverityLow
	case days <= 30:
		return model.SeverityMedium
	case days <= 90:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}

// OutlierSeverity grades a relative move by how many thresholds it spans.
func OutlierSeverity(change, threshold float64) model.Severity {
	ratio := math.Abs(change) / threshold
	switch {
	case ratio <= 2:
		return model.SeverityMedium
	case ratio <= 4:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}

// normalize truncates dates to midnight UTC, keeps the last occurrence of each
// date and sorts ascending.
func normalize(in []model.RawBar) []model.RawBar {
	byDate := make(map[time.Time]int, len(in))
	out := make([]model.RawBar, 0, len(in))
	for _, bar := range in {
		bar.Date = model.TruncateDay(bar.Date)
		if i, ok := byDate[bar.Date]; ok {
			out[i] = bar
			continue
		}
		byDate[bar.Date] = len(out)
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func latestBefore(tail []model.PriceBar, cutoff time.Time) (model.PriceBar, bool) {
	var (
		best  model.PriceBar
		found bool
	)
	for _, bar := range tail {
		if bar.Date.Before(cutoff) && (!found || bar.Date.After(best.Date)) {
			best, found = bar, true
		}
	}
	return best, found
}

func daysBetween(a, b time.Time) int {
	return int(model.TruncateDay(b).Sub(model.TruncateDay(a)).Hours() / 24)
}
