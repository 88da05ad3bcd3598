package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
)

// AssetRepository provides data access methods for the asset_metadata table.
type AssetRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewAssetRepository creates a new AssetRepository with the provided database connection.
func NewAssetRepository(db *sql.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// WithTx returns a new AssetRepository scoped to the provided transaction.
func (r *AssetRepository) WithTx(tx *sql.Tx) *AssetRepository {
	return &AssetRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *AssetRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const assetColumns = `
	symbol, name, asset_type, exchange, sector, industry, currency,
	first_date, last_date, is_active, update_frequency, notes,
	timeframe, asset_group, has_ohlc, has_volume, data_quality_score,
	created_at, updated_at`

// GetAssets retrieves catalog rows ordered by symbol.
//
// Parameters:
//   - ctx: Context for cancellation
//   - activeOnly: When true only rows with is_active = 1 are returned
//
// Returns an empty slice if no assets match.
func (r *AssetRepository) GetAssets(ctx context.Context, activeOnly bool) ([]model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM asset_metadata`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY symbol ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset_metadata: %w", err)
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset_metadata: %w", err)
	}
	return assets, nil
}

// GetAsset retrieves one catalog row. Returns apperrors.ErrAssetNotFound when absent.
func (r *AssetRepository) GetAsset(ctx context.Context, symbol string) (model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM asset_metadata WHERE symbol = ?`
	a, err := scanAsset(r.getQuerier().QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Asset{}, apperrors.ErrAssetNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (model.Asset, error) {
	var (
		a                                                     model.Asset
		name, assetType, exchange, sector, industry, currency sql.NullString
		notes, timeframe, group, frequency                    sql.NullString
		first, last, created, updated                         sql.NullString
		isActive, hasOHLC, hasVolume                          sql.NullBool
		score                                                 sql.NullFloat64
	)
	err := row.Scan(
		&a.Symbol, &name, &assetType, &exchange, &sector, &industry, &currency,
		&first, &last, &isActive, &frequency, &notes,
		&timeframe, &group, &hasOHLC, &hasVolume, &score,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Asset{}, err
	}
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to scan asset_metadata results: %w", err)
	}

	a.Name = name.String
	a.AssetType = assetType.String
	a.Exchange = exchange.String
	a.Sector = sector.String
	a.Industry = industry.String
	a.Currency = currency.String
	a.Notes = notes.String
	a.Timeframe = timeframe.String
	a.AssetGroup = group.String
	a.IsActive = isActive.Bool
	a.HasOHLC = hasOHLC.Bool
	a.HasVolume = hasVolume.Bool
	a.QualityScore = score.Float64
	a.UpdateFrequency = model.UpdateFrequency(frequency.String)
	if a.UpdateFrequency == "" {
		a.UpdateFrequency = model.FrequencyDaily
	}

	for _, f := range []struct {
		src sql.NullString
		dst *time.Time
	}{
		{first, &a.FirstDate},
		{last, &a.LastDate},
		{created, &a.CreatedAt},
		{updated, &a.UpdatedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return model.Asset{}, err
		}
	}
	return a, nil
}

// UpsertAsset creates or updates the descriptive columns of a catalog row.
// Derived columns (first/last date, coverage flags, quality score) are left untouched.
func (r *AssetRepository) UpsertAsset(ctx context.Context, a model.Asset, now time.Time) error {
	query := `
		INSERT INTO asset_metadata (
			symbol, name, asset_type, exchange, sector, industry, currency,
			is_active, update_frequency, notes, timeframe, asset_group, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			asset_type = excluded.asset_type,
			exchange = excluded.exchange,
			sector = excluded.sector,
			industry = excluded.industry,
			currency = excluded.currency,
			is_active = excluded.is_active,
			update_frequency = excluded.update_frequency,
			notes = excluded.notes,
			timeframe = excluded.timeframe,
			asset_group = excluded.asset_group,
			updated_at = excluded.updated_at`

	ts := formatTimestamp(now)
	_, err := r.getQuerier().ExecContext(ctx, query,
		a.Symbol,
		nullableString(a.Name),
		nullableString(a.AssetType),
		nullableString(a.Exchange),
		nullableString(a.Sector),
		nullableString(a.Industry),
		a.Currency,
		a.IsActive,
		string(a.UpdateFrequency),
		nullableString(a.Notes),
		a.Timeframe,
		nullableString(a.AssetGroup),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset_metadata %s: %w", a.Symbol, err)
	}
	return nil
}

// UpdateCoverage writes the aggregates derived from price_data. A missing
// catalog row is created so the aggregates are never lost.
func (r *AssetRepository) UpdateCoverage(ctx context.Context, symbol string, c model.AssetCoverage, now time.Time) error {
	query := `
		INSERT INTO asset_metadata (symbol, first_date, last_date, has_ohlc, has_volume, data_quality_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			first_date = excluded.first_date,
			last_date = excluded.last_date,
			has_ohlc = excluded.has_ohlc,
			has_volume = excluded.has_volume,
			data_quality_score = excluded.data_quality_score,
			updated_at = excluded.updated_at`

	ts := formatTimestamp(now)
	_, err := r.getQuerier().ExecContext(ctx, query,
		symbol,
		nullableDate(c.FirstDate),
		nullableDate(c.LastDate),
		c.CompleteOHLC,
		c.VolumeBars > 0,
		c.QualityScore(),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset_metadata coverage %s: %w", symbol, err)
	}
	return nil
}

// FillDescriptors sets name, currency and exchange from provider metadata
// where the catalog has no value yet.
func (r *AssetRepository) FillDescriptors(ctx context.Context, symbol, name, currency, exchange string) error {
	query := `
		UPDATE asset_metadata SET
			name = COALESCE(NULLIF(name, ''), ?),
			currency = COALESCE(NULLIF(currency, ''), ?),
			exchange = COALESCE(NULLIF(exchange, ''), ?)
		WHERE symbol = ?`

	_, err := r.getQuerier().ExecContext(ctx, query,
		nullableString(name),
		nullableString(currency),
		nullableString(exchange),
		symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to fill asset_metadata descriptors %s: %w", symbol, err)
	}
	return nil
}

// ActivateInGroup marks a catalog row active and assigns group as its primary
// asset_group when it has none. Returns apperrors.ErrAssetNotFound for an unknown symbol.
func (r *AssetRepository) ActivateInGroup(ctx context.Context, symbol, group string, now time.Time) error {
	query := `
		UPDATE asset_metadata SET
			is_active = 1,
			asset_group = COALESCE(NULLIF(asset_group, ''), ?),
			updated_at = ?
		WHERE symbol = ?`

	res, err := r.getQuerier().ExecContext(ctx, query, nullableString(group), formatTimestamp(now), symbol)
	if err != nil {
		return fmt.Errorf("failed to activate asset_metadata %s: %w", symbol, err)
	}
	return requireAffected(res, symbol)
}

// SetActive toggles whether update runs consider the asset.
func (r *AssetRepository) SetActive(ctx context.Context, symbol string, active bool, now time.Time) error {
	query := `UPDATE asset_metadata SET is_active = ?, updated_at = ? WHERE symbol = ?`

	res, err := r.getQuerier().ExecContext(ctx, query, active, formatTimestamp(now), symbol)
	if err != nil {
		return fmt.Errorf("failed to update asset_metadata %s: %w", symbol, err)
	}
	return requireAffected(res, symbol)
}

func requireAffected(res sql.Result, symbol string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", symbol, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrAssetNotFound, symbol)
	}
	return nil
}
