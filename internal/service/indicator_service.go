package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/indicator"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
)

// IndicatorService maintains the versioned indicators_cache.
type IndicatorService struct {
	db            *sql.DB
	priceRepo     *repository.PriceRepository
	indicatorRepo *repository.IndicatorRepository
	now           func() time.Time
}

// NewIndicatorService creates a new IndicatorService with the provided repository dependencies.
func NewIndicatorService(
	db *sql.DB,
	priceRepo *repository.PriceRepository,
	indicatorRepo *repository.IndicatorRepository,
) *IndicatorService {
	return &IndicatorService{
		db:            db,
		priceRepo:     priceRepo,
		indicatorRepo: indicatorRepo,
		now:           time.Now,
	}
}

// WithClock overrides the calculated_at timestamp source.
func (s *IndicatorService) WithClock(now func() time.Time) *IndicatorService {
	s.now = now
	return s
}

// Refresh recomputes every indicator of version whose window touches a bar in r.
//
// It loads MaxWindow-1 bars before r.From and every bar from r.From onwards, then
// recomputes from r.From through the Window-1-th bar after r.To so values that
// depend on a changed bar are rewritten too. Only rows of the given version are
// written.
//
// Returns the number of rows written. An empty range writes nothing.
func (s *IndicatorService) Refresh(ctx context.Context, symbol string, r model.DateRange, version string) (int, error) {
	set, err := indicator.Lookup(version)
	if err != nil {
		return 0, err
	}
	if r.Empty() {
		return 0, nil
	}

	before, err := s.priceRepo.GetBarsBefore(ctx, symbol, r.From, set.MaxWindow()-1)
	if err != nil {
		return 0, apperrors.Storage("load indicator lookback "+symbol, err)
	}
	after, err := s.priceRepo.GetBars(ctx, symbol, r.From, time.Time{})
	if err != nil {
		return 0, apperrors.Storage("load indicator inputs "+symbol, err)
	}

	fromIdx := len(before)
	lastIdx := fromIdx - 1
	for i, b := range after {
		if b.Date.After(r.To) {
			break
		}
		lastIdx = fromIdx + i
	}
	if lastIdx < fromIdx {
		return 0, nil
	}

	bars := append(before, after...)
	return s.write(ctx, set.Compute(symbol, bars, fromIdx, lastIdx))
}

// Rebuild recomputes the full history of symbol under version.
func (s *IndicatorService) Rebuild(ctx context.Context, symbol, version string) (int, error) {
	set, err := indicator.Lookup(version)
	if err != nil {
		return 0, err
	}
	bars, err := s.priceRepo.GetBars(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return 0, apperrors.Storage("load indicator inputs "+symbol, err)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	return s.write(ctx, set.Compute(symbol, bars, 0, len(bars)-1))
}

func (s *IndicatorService) write(ctx context.Context, values []model.IndicatorValue) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Storage("begin indicator refresh", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.indicatorRepo.WithTx(tx).UpsertValues(ctx, values, s.now()); err != nil {
		return 0, apperrors.Storage("upsert indicators", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Storage("commit indicator refresh", err)
	}
	return len(values), nil
}

// GetValues returns cached values of one indicator. name is checked against the
// registered formulas of version.
func (s *IndicatorService) GetValues(ctx context.Context, symbol, name, version string, from, to time.Time) ([]model.IndicatorValue, error) {
	set, err := indicator.Lookup(version)
	if err != nil {
		return nil, err
	}
	if _, err := set.Formula(name); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, apperrors.ErrInvalidDateRange
	}
	return readRetry(ctx, func(ctx context.Context) ([]model.IndicatorValue, error) {
		return s.indicatorRepo.GetValues(ctx, symbol, name, version, from, to)
	})
}
