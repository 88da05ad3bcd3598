package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// AssetBuilder provides a fluent interface for creating catalog rows.
//
// Example usage:
//
//	// Simple creation with defaults
//	asset := testutil.NewAsset().Build(t, db)
//
//	// Customized asset
//	asset := testutil.NewAsset().
//	    WithSymbol("AAPL").
//	    WithFrequency(model.FrequencyWeekly).
//	    Inactive().
//	    Build(t, db)
type AssetBuilder struct {
	Symbol          string
	Name            string
	AssetType       string
	Exchange        string
	Currency        string
	AssetGroup      string
	IsActive        bool
	UpdateFrequency model.UpdateFrequency
	FirstDate       time.Time
	LastDate        time.Time
}

// NewAsset creates an AssetBuilder with sensible defaults.
func NewAsset() *AssetBuilder {
	return &AssetBuilder{
		Symbol:          MakeSymbol("TST"),
		Name:            MakeAssetName("Test Asset"),
		AssetType:       "stock",
		Exchange:        RandomExchange(),
		Currency:        RandomCurrency(),
		IsActive:        true,
		UpdateFrequency: model.FrequencyDaily,
	}
}

// WithSymbol sets a custom symbol.
func (b *AssetBuilder) WithSymbol(symbol string) *AssetBuilder {
	b.Symbol = symbol
	return b
}

// WithName sets a custom name.
func (b *AssetBuilder) WithName(name string) *AssetBuilder {
	b.Name = name
	return b
}

// WithType sets the asset type.
func (b *AssetBuilder) WithType(assetType string) *AssetBuilder {
	b.AssetType = assetType
	return b
}

// WithGroup sets the asset group.
func (b *AssetBuilder) WithGroup(group string) *AssetBuilder {
	b.AssetGroup = group
	return b
}

// WithFrequency sets the update frequency.
func (b *AssetBuilder) WithFrequency(f model.UpdateFrequency) *AssetBuilder {
	b.UpdateFrequency = f
	return b
}

// WithDates sets first_date and last_date without inserting bars.
func (b *AssetBuilder) WithDates(first, last string) *AssetBuilder {
	b.FirstDate = MustDate(first)
	b.LastDate = MustDate(last)
	return b
}

// Inactive marks the asset as inactive.
func (b *AssetBuilder) Inactive() *AssetBuilder {
	b.IsActive = false
	return b
}

// Build creates the asset in the database and returns it.
func (b *AssetBuilder) Build(t *testing.T, db *sql.DB) model.Asset {
	t.Helper()

	query := `
		INSERT INTO asset_metadata (symbol, name, asset_type, exchange, currency, asset_group,
			is_active, update_frequency, first_date, last_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		b.Symbol, b.Name, b.AssetType, b.Exchange, b.Currency, nullIfEmpty(b.AssetGroup),
		b.IsActive, string(b.UpdateFrequency), nullDate(b.FirstDate), nullDate(b.LastDate),
	)
	if err != nil {
		t.Fatalf("Failed to create test asset: %v", err)
	}

	return model.Asset{
		Symbol:          b.Symbol,
		Name:            b.Name,
		AssetType:       b.AssetType,
		Exchange:        b.Exchange,
		Currency:        b.Currency,
		AssetGroup:      b.AssetGroup,
		IsActive:        b.IsActive,
		UpdateFrequency: b.UpdateFrequency,
		FirstDate:       b.FirstDate,
		LastDate:        b.LastDate,
	}
}

// PriceBarBuilder provides a fluent interface for creating stored bars.
//
// Example usage:
//
//	bar := testutil.NewPriceBar("AAPL", "2025-01-10").WithClose(1.2).Build(t, db)
type PriceBarBuilder struct {
	bar model.PriceBar
}

// NewPriceBar creates a valid bar with close 100 and quality ok.
func NewPriceBar(symbol, date string) *PriceBarBuilder {
	return &PriceBarBuilder{bar: model.PriceBar{
		Symbol:   symbol,
		Date:     MustDate(date),
		Open:     100,
		High:     101,
		Low:      99,
		Close:    100,
		AdjClose: 100,
		Volume:   1000000,
		Quality:  model.QualityOK,
		Source:   "yahoo",
	}}
}

// WithClose sets close and adjusted close and keeps the bar valid.
func (b *PriceBarBuilder) WithClose(c float64) *PriceBarBuilder {
	b.bar.Open = c
	b.bar.High = c * 1.01
	b.bar.Low = c * 0.99
	b.bar.Close = c
	b.bar.AdjClose = c
	return b
}

// WithQuality sets the quality flag.
func (b *PriceBarBuilder) WithQuality(q model.QualityFlag) *PriceBarBuilder {
	b.bar.Quality = q
	return b
}

// WithVolume sets the volume.
func (b *PriceBarBuilder) WithVolume(v int64) *PriceBarBuilder {
	b.bar.Volume = v
	return b
}

// Build creates the bar in the database and returns it.
func (b *PriceBarBuilder) Build(t *testing.T, db *sql.DB) model.PriceBar {
	t.Helper()
	InsertBars(t, db, b.bar)
	return b.bar
}

// InsertBars stores bars directly, bypassing the merge engine.
func InsertBars(t *testing.T, db *sql.DB, bars ...model.PriceBar) {
	t.Helper()

	query := `
		INSERT INTO price_data (symbol, date, open, high, low, close, adj_close, volume, data_quality, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, bar := range bars {
		_, err := db.Exec(query,
			bar.Symbol, bar.DateKey(), bar.Open, bar.High, bar.Low, bar.Close,
			bar.AdjClose, bar.Volume, string(bar.Quality), bar.Source,
		)
		if err != nil {
			t.Fatalf("Failed to create test bar: %v", err)
		}
	}
}

// InsertMembership stores an index membership directly. added is YYYY-MM-DD.
func InsertMembership(t *testing.T, db *sql.DB, symbol, index, added string, active bool) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO index_memberships (symbol, index_name, added_date, is_active)
		VALUES (?, ?, ?, ?)
	`, symbol, index, added, active)
	if err != nil {
		t.Fatalf("Failed to create test membership: %v", err)
	}
}

// SeedSeries stores one bar per calendar day starting at start, one per close.
func SeedSeries(t *testing.T, db *sql.DB, symbol, start string, closes ...float64) []model.PriceBar {
	t.Helper()

	bars := make([]model.PriceBar, len(closes))
	for i, raw := range RawBarSeries(start, closes...) {
		bars[i] = raw.ToPriceBar(symbol, "yahoo")
	}
	InsertBars(t, db, bars...)
	return bars
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(model.DateLayout)
}
