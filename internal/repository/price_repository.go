package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
)

// PriceRepository provides data access methods for the price_data table.
type PriceRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPriceRepository creates a new PriceRepository with the provided database connection.
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// WithTx returns a new PriceRepository scoped to the provided transaction.
func (r *PriceRepository) WithTx(tx *sql.Tx) *PriceRepository {
	return &PriceRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *PriceRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const priceColumns = `symbol, date, open, high, low, close, adj_close, volume, data_quality, source, created_at`

// GetBars retrieves bars for a symbol in ascending date order.
// A zero from or to leaves that side of the range open.
func (r *PriceRepository) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error) {
	query := `SELECT ` + priceColumns + ` FROM price_data WHERE symbol = ?`
	args := []any{symbol}

	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, formatDate(to))
	}
	query += ` ORDER BY date ASC`

	return r.queryBars(ctx, query, args...)
}

// GetBarsBefore retrieves up to limit of the latest bars strictly before the given date,
// returned in ascending date order.
func (r *PriceRepository) GetBarsBefore(ctx context.Context, symbol string, before time.Time, limit int) ([]model.PriceBar, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT * FROM (
			SELECT ` + priceColumns + `
			FROM price_data
			WHERE symbol = ? AND date < ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC`

	return r.queryBars(ctx, query, symbol, formatDate(before), limit)
}

func (r *PriceRepository) queryBars(ctx context.Context, query string, args ...any) ([]model.PriceBar, error) {
	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price_data: %w", err)
	}
	defer rows.Close()

	bars := []model.PriceBar{}
	for rows.Next() {
		var (
			b                  model.PriceBar
			dateStr, quality   string
			source, createdStr sql.NullString
		)
		if err := rows.Scan(
			&b.Symbol,
			&dateStr,
			&b.Open,
			&b.High,
			&b.Low,
			&b.Close,
			&b.AdjClose,
			&b.Volume,
			&quality,
			&source,
			&createdStr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price_data results: %w", err)
		}

		if b.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		if b.Quality, err = model.ParseQualityFlag(quality); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseNullTime(createdStr); err != nil {
			return nil, err
		}
		b.Source = source.String
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price_data: %w", err)
	}
	return bars, nil
}

// UpsertBars writes bars keyed by (symbol, date). An existing row is overwritten in
// full; created_at keeps its original value.
func (r *PriceRepository) UpsertBars(ctx context.Context, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_data (symbol, date, open, high, low, close, adj_close, volume, data_quality, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			adj_close = excluded.adj_close,
			volume = excluded.volume,
			data_quality = excluded.data_quality,
			source = excluded.source`

	q := r.getQuerier()
	for _, b := range bars {
		if !b.Quality.Valid() {
			return fmt.Errorf("refusing to store bar %s %s with flag %q: %w", b.Symbol, b.DateKey(), b.Quality, apperrors.ErrInvalidQualityFlag)
		}
		if _, err := q.ExecContext(ctx, query,
			b.Symbol,
			formatDate(b.Date),
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.AdjClose,
			b.Volume,
			string(b.Quality),
			b.Source,
		); err != nil {
			return fmt.Errorf("failed to upsert price_data %s %s: %w", b.Symbol, b.DateKey(), err)
		}
	}
	return nil
}

// GetLastDates returns the newest stored date per symbol.
func (r *PriceRepository) GetLastDates(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `SELECT symbol, MAX(date) FROM price_data GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query last dates: %w", err)
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var symbol, last string
		if err := rows.Scan(&symbol, &last); err != nil {
			return nil, fmt.Errorf("failed to scan last dates: %w", err)
		}
		d, err := ParseTime(last)
		if err != nil {
			return nil, err
		}
		result[symbol] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating last dates: %w", err)
	}
	return result, nil
}

// GetCoverage aggregates the stored bars of a symbol.
func (r *PriceRepository) GetCoverage(ctx context.Context, symbol string) (model.AssetCoverage, error) {
	query := `
		SELECT
			MIN(date),
			MAX(date),
			COUNT(*),
			COALESCE(SUM(CASE WHEN data_quality = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN volume > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN open IS NOT NULL AND high IS NOT NULL
				AND low IS NOT NULL AND close IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM price_data
		WHERE symbol = ?`

	var (
		c            model.AssetCoverage
		first, last  sql.NullString
		completeOHLC int
	)
	if err := r.getQuerier().QueryRowContext(ctx, query, symbol).Scan(
		&first, &last, &c.Bars, &c.OKBars, &c.VolumeBars, &completeOHLC,
	); err != nil {
		return model.AssetCoverage{}, fmt.Errorf("failed to aggregate price_data: %w", err)
	}

	var err error
	if c.FirstDate, err = parseNullTime(first); err != nil {
		return model.AssetCoverage{}, err
	}
	if c.LastDate, err = parseNullTime(last); err != nil {
		return model.AssetCoverage{}, err
	}
	c.CompleteOHLC = c.Bars > 0 && completeOHLC == c.Bars
	return c, nil
}

// CountBars returns the number of stored bars for a symbol, or for all symbols when symbol is empty.
func (r *PriceRepository) CountBars(ctx context.Context, symbol string) (int, error) {
	query := `SELECT COUNT(*) FROM price_data`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	var n int
	if err := r.getQuerier().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count price_data: %w", err)
	}
	return n, nil
}
