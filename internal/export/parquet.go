// Package export writes stored price history as Parquet snapshots for downstream consumers.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ndewijer/market-data-store/internal/model"
)

// Bar is the Parquet row layout of one exported price bar.
// Date is days since the Unix epoch.
type Bar struct {
	Date     int32   `parquet:"date,date"`
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
	Volume   int64   `parquet:"volume"`
	Quality  string  `parquet:"data_quality,dict"`
	Source   string  `parquet:"source,dict"`
}

// Source is the read side of the catalog the exporter needs.
type Source interface {
	GetAssets(ctx context.Context) ([]model.Asset, error)
	GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error)
}

// Exporter writes one <symbol>.parquet file per asset into Dir.
type Exporter struct {
	source Source
	dir    string
	logger *slog.Logger
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(source Source, dir string, logger *slog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// Path returns the snapshot file of symbol.
func (e *Exporter) Path(symbol string) string {
	return filepath.Join(e.dir, symbol+".parquet")
}

// ExportSymbol writes the full stored history of symbol and returns the row count.
// The file is replaced atomically, so readers never see a partial snapshot.
func (e *Exporter) ExportSymbol(ctx context.Context, symbol string) (int, error) {
	bars, err := e.source.GetPrices(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", symbol, err)
	}

	rows := make([]Bar, len(bars))
	for i, b := range bars {
		rows[i] = toRow(b)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create export dir: %w", err)
	}
	tmp := e.Path(symbol) + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, e.Path(symbol)); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to publish %s snapshot: %w", symbol, err)
	}

	e.logger.Info("exported snapshot", "symbol", symbol, "rows", len(rows), "path", e.Path(symbol))
	return len(rows), nil
}

// ExportAll exports every catalog asset, active or not. It stops at the first failure.
func (e *Exporter) ExportAll(ctx context.Context) (map[string]int, error) {
	assets, err := e.source.GetAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	counts := make(map[string]int, len(assets))
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		n, err := e.ExportSymbol(ctx, a.Symbol)
		if err != nil {
			return counts, err
		}
		counts[a.Symbol] = n
	}
	return counts, nil
}

func toRow(b model.PriceBar) Bar {
	return Bar{
		Date:     int32(b.Date.Unix() / 86400),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		AdjClose: b.AdjClose,
		Volume:   b.Volume,
		Quality:  string(b.Quality),
		Source:   b.Source,
	}
}
