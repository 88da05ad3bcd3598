package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
)

// MergeService writes analysed bars into price_data together with their anomalies
// and the derived asset_metadata coverage, one transaction per symbol.
type MergeService struct {
	db          *sql.DB
	priceRepo   *repository.PriceRepository
	assetRepo   *repository.AssetRepository
	qualityRepo *repository.QualityRepository
	now         func() time.Time
}

// NewMergeService creates a new MergeService with the provided repository dependencies.
func NewMergeService(
	db *sql.DB,
	priceRepo *repository.PriceRepository,
	assetRepo *repository.AssetRepository,
	qualityRepo *repository.QualityRepository,
) *MergeService {
	return &MergeService{
		db:          db,
		priceRepo:   priceRepo,
		assetRepo:   assetRepo,
		qualityRepo: qualityRepo,
		now:         time.Now,
	}
}

// WithClock overrides the timestamp source used for rejection records and metadata.
func (s *MergeService) WithClock(now func() time.Time) *MergeService {
	s.now = now
	return s
}

// Merge upserts bars for symbol. See MergeAnalyzed.
func (s *MergeService) Merge(ctx context.Context, symbol string, bars []model.PriceBar) (model.MergeResult, error) {
	return s.MergeAnalyzed(ctx, symbol, bars, nil)
}

// MergeAnalyzed upserts bars for symbol and appends anomalies in one transaction.
//
// Each bar is validated on its own. A bar violating the OHLC/volume invariant is
// recorded as an invalid anomaly, counted as Rejected and skipped; the rest of the
// batch is still written. Bars with an existing (symbol, date) key replace the
// stored row in full. When two bars share a date the later one wins.
//
// After the upserts the asset_metadata coverage (first/last date, has_ohlc,
// has_volume, data_quality_score) is recomputed from price_data inside the same
// transaction.
//
// Parameters:
//   - ctx: Context for the transaction
//   - symbol: Instrument symbol every bar must belong to
//   - bars: Annotated bars to store
//   - anomalies: Records produced by quality analysis for this batch
//
// Returns:
//   - model.MergeResult: Inserted, updated and rejected counts plus the dates whose
//     stored content changed, in ascending order
//   - error: *apperrors.StorageError when any statement fails; nothing is committed
func (s *MergeService) MergeAnalyzed(ctx context.Context, symbol string, bars []model.PriceBar, anomalies []model.QualityAnomaly) (model.MergeResult, error) {
	var result model.MergeResult
	now := s.now().UTC()

	accepted, rejected := partitionBars(symbol, bars, now)
	result.Rejected = len(rejected)
	anomalies = append(append([]model.QualityAnomaly{}, anomalies...), rejected...)

	if len(accepted) == 0 && len(anomalies) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.MergeResult{}, apperrors.Storage("begin merge "+symbol, err)
	}
	defer func() { _ = tx.Rollback() }()

	priceRepo := s.priceRepo.WithTx(tx)

	if len(accepted) > 0 {
		existing, err := priceRepo.GetBars(ctx, symbol, accepted[0].Date, accepted[len(accepted)-1].Date)
		if err != nil {
			return model.MergeResult{}, apperrors.Storage("load existing bars "+symbol, err)
		}
		stored := make(map[string]model.PriceBar, len(existing))
		for _, b := range existing {
			stored[b.DateKey()] = b
		}

		for _, b := range accepted {
			old, ok := stored[b.DateKey()]
			switch {
			case !ok:
				result.Inserted++
				result.ChangedDates = append(result.ChangedDates, b.Date)
			case !old.SameContent(b):
				result.Updated++
				result.ChangedDates = append(result.ChangedDates, b.Date)
			default:
				result.Updated++
			}
		}

		if err := priceRepo.UpsertBars(ctx, accepted); err != nil {
			return model.MergeResult{}, apperrors.Storage("upsert bars "+symbol, err)
		}
	}

	if err := s.qualityRepo.WithTx(tx).InsertAnomalies(ctx, anomalies); err != nil {
		return model.MergeResult{}, apperrors.Storage("record anomalies "+symbol, err)
	}

	coverage, err := priceRepo.GetCoverage(ctx, symbol)
	if err != nil {
		return model.MergeResult{}, apperrors.Storage("aggregate coverage "+symbol, err)
	}
	if coverage.Bars > 0 {
		if err := s.assetRepo.WithTx(tx).UpdateCoverage(ctx, symbol, coverage, now); err != nil {
			return model.MergeResult{}, apperrors.Storage("update coverage "+symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.MergeResult{}, apperrors.Storage("commit merge "+symbol, err)
	}
	return result, nil
}

// partitionBars splits bars into valid bars (deduplicated by date, ascending) and
// invalid anomaly records.
func partitionBars(symbol string, bars []model.PriceBar, now time.Time) ([]model.PriceBar, []model.QualityAnomaly) {
	byDate := make(map[string]model.PriceBar, len(bars))
	var rejected []model.QualityAnomaly

	for _, b := range bars {
		b.Date = model.TruncateDay(b.Date)
		if err := ValidateBar(symbol, b); err != nil {
			rejected = append(rejected, model.QualityAnomaly{
				Symbol:      symbol,
				Date:        b.Date,
				IssueType:   model.IssueInvalid,
				Severity:    model.SeverityHigh,
				Description: err.Reason,
				DetectedAt:  now,
			})
			continue
		}
		byDate[b.DateKey()] = b
	}

	accepted := make([]model.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		accepted = append(accepted, b)
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Date.Before(accepted[j].Date) })
	return accepted, rejected
}

// ValidateBar checks the stored-row invariant of a price bar:
// High >= max(Open, Close, Low), Low <= min(Open, Close) and Volume >= 0.
func ValidateBar(symbol string, b model.PriceBar) *apperrors.DataIntegrityError {
	fail := func(format string, args ...any) *apperrors.DataIntegrityError {
		return &apperrors.DataIntegrityError{Symbol: symbol, Date: b.Date, Reason: fmt.Sprintf(format, args...)}
	}

	if b.Symbol != symbol {
		return fail("bar belongs to %q", b.Symbol)
	}
	if b.Date.IsZero() {
		return fail("missing date")
	}
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "adj_close": b.AdjClose} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("%s is not a finite number", name)
		}
	}
	if b.High < max(b.Open, b.Close, b.Low) {
		return fail("high %g below max(open %g, close %g, low %g)", b.High, b.Open, b.Close, b.Low)
	}
	if b.Low > min(b.Open, b.Close) {
		return fail("low %g above min(open %g, close %g)", b.Low, b.Open, b.Close)
	}
	if b.Volume < 0 {
		return fail("negative volume %d", b.Volume)
	}
	if !b.Quality.Valid() {
		return fail("unknown quality flag %q", b.Quality)
	}
	return nil
}
