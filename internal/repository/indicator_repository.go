package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// IndicatorRepository provides data access methods for the indicators_cache table.
type IndicatorRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewIndicatorRepository creates a new IndicatorRepository with the provided database connection.
func NewIndicatorRepository(db *sql.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

// WithTx returns a new IndicatorRepository scoped to the provided transaction.
func (r *IndicatorRepository) WithTx(tx *sql.Tx) *IndicatorRepository {
	return &IndicatorRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *IndicatorRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// UpsertValues writes indicator rows keyed by (symbol, date, indicator_name, calculation_version).
// Rows of other versions are never touched.
func (r *IndicatorRepository) UpsertValues(ctx context.Context, values []model.IndicatorValue, calculatedAt time.Time) error {
	query := `
		INSERT INTO indicators_cache (symbol, date, indicator_name, value, calculation_version, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date, indicator_name, calculation_version) DO UPDATE SET
			value = excluded.value,
			calculated_at = excluded.calculated_at`

	ts := formatTimestamp(calculatedAt)
	q := r.getQuerier()
	for _, v := range values {
		if _, err := q.ExecContext(ctx, query,
			v.Symbol,
			formatDate(v.Date),
			v.Name,
			v.Value,
			v.Version,
			ts,
		); err != nil {
			return fmt.Errorf("failed to upsert indicators_cache %s %s %s: %w", v.Symbol, v.Name, v.Version, err)
		}
	}
	return nil
}

// GetValues retrieves cached values of one indicator and version in ascending date order.
// A zero from or to leaves that side of the range open.
func (r *IndicatorRepository) GetValues(ctx context.Context, symbol, name, version string, from, to time.Time) ([]model.IndicatorValue, error) {
	query := `
		SELECT symbol, date, indicator_name, value, calculation_version, calculated_at
		FROM indicators_cache
		WHERE symbol = ? AND indicator_name = ? AND calculation_version = ?`
	args := []any{symbol, name, version}

	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, formatDate(to))
	}
	query += ` ORDER BY date ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators_cache: %w", err)
	}
	defer rows.Close()

	values := []model.IndicatorValue{}
	for rows.Next() {
		var (
			v          model.IndicatorValue
			dateStr    string
			calculated sql.NullString
		)
		if err := rows.Scan(&v.Symbol, &dateStr, &v.Name, &v.Value, &v.Version, &calculated); err != nil {
			return nil, fmt.Errorf("failed to scan indicators_cache results: %w", err)
		}
		if v.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		if v.CalculatedAt, err = parseNullTime(calculated); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indicators_cache: %w", err)
	}
	return values, nil
}

// CountValues counts cached rows for a symbol and version.
func (r *IndicatorRepository) CountValues(ctx context.Context, symbol, version string) (int, error) {
	var n int
	err := r.getQuerier().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM indicators_cache WHERE symbol = ? AND calculation_version = ?`,
		symbol, version,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count indicators_cache: %w", err)
	}
	return n, nil
}
