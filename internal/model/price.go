package model

import (
	"fmt"
	"time"
)

// DateLayout is the storage format for all date-only columns.
const DateLayout = "2006-01-02"

// QualityFlag is the advisory quality annotation stored with every price bar.
// Only the values declared below are valid; ParseQualityFlag rejects anything else.
type QualityFlag string

const (
	QualityOK      QualityFlag = "ok"
	QualityGap     QualityFlag = "gap"
	QualityOutlier QualityFlag = "outlier"
)

// ParseQualityFlag converts a stored data_quality value into a QualityFlag.
func ParseQualityFlag(s string) (QualityFlag, error) {
	switch QualityFlag(s) {
	case QualityOK, QualityGap, QualityOutlier:
		return QualityFlag(s), nil
	}
	return "", fmt.Errorf("invalid quality flag %q", s)
}

// Valid reports whether f is one of the declared flags.
func (f QualityFlag) Valid() bool {
	_, err := ParseQualityFlag(string(f))
	return err == nil
}

// PriceBar is one daily OHLCV record, unique per (Symbol, Date).
type PriceBar struct {
	Symbol    string      `json:"symbol"`
	Date      time.Time   `json:"date"`
	Open      float64     `json:"open"`
	High      float64     `json:"high"`
	Low       float64     `json:"low"`
	Close     float64     `json:"close"`
	AdjClose  float64     `json:"adjClose"`
	Volume    int64       `json:"volume"`
	Quality   QualityFlag `json:"dataQuality"`
	Source    string      `json:"source"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
}

// DateKey returns the bar date in storage format.
func (b PriceBar) DateKey() string {
	return b.Date.Format(DateLayout)
}

// SameContent reports whether two bars carry identical stored values.
// CreatedAt is ignored.
func (b PriceBar) SameContent(o PriceBar) bool {
	return b.Symbol == o.Symbol &&
		b.DateKey() == o.DateKey() &&
		b.Open == o.Open &&
		b.High == o.High &&
		b.Low == o.Low &&
		b.Close == o.Close &&
		b.AdjClose == o.AdjClose &&
		b.Volume == o.Volume &&
		b.Quality == o.Quality &&
		b.Source == o.Source
}

// RawBar is a bar as delivered by a market-data provider, before quality analysis.
// Missing values are nil.
type RawBar struct {
	Date     time.Time
	Open     *float64
	High     *float64
	Low      *float64
	Close    *float64
	AdjClose *float64
	Volume   *int64
}

// MissingFields lists the required OHLCV fields that are nil.
func (r RawBar) MissingFields() []string {
	var missing []string
	if r.Open == nil {
		missing = append(missing, "open")
	}
	if r.High == nil {
		missing = append(missing, "high")
	}
	if r.Low == nil {
		missing = append(missing, "low")
	}
	if r.Close == nil {
		missing = append(missing, "close")
	}
	if r.Volume == nil {
		missing = append(missing, "volume")
	}
	return missing
}

// ToPriceBar converts a complete raw bar. The caller must check MissingFields first.
// A missing adjusted close falls back to the close.
func (r RawBar) ToPriceBar(symbol, source string) PriceBar {
	adj := *r.Close
	if r.AdjClose != nil {
		adj = *r.AdjClose
	}
	return PriceBar{
		Symbol:   symbol,
		Date:     TruncateDay(r.Date),
		Open:     *r.Open,
		High:     *r.High,
		Low:      *r.Low,
		Close:    *r.Close,
		AdjClose: adj,
		Volume:   *r.Volume,
		Quality:  QualityOK,
		Source:   source,
	}
}

// TruncateDay returns midnight UTC of the calendar day of t (in UTC).
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Empty reports whether the range contains no days.
func (r DateRange) Empty() bool {
	return r.From.IsZero() || r.To.IsZero() || r.From.After(r.To)
}
