package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/indicator"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/quality"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/state"
	"github.com/ndewijer/market-data-store/internal/yahoo"
)

// Outcome is the terminal state of one orchestrator invocation.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomePartial        Outcome = "partially_failed"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeAlreadyRunning Outcome = "already_running"
)

// Process exit codes returned by RunUpdate.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// ExitCode maps an outcome to the process exit status. A partial run only
// exists below the failure tolerance and advances last success, so it exits 0;
// update_log carries the partial status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeCompleted, OutcomePartial, OutcomeSkipped, OutcomeAlreadyRunning:
		return ExitOK
	default:
		return ExitFailed
	}
}

// ChartFetcher retrieves provider bars with instrument metadata.
type ChartFetcher interface {
	FetchChart(ctx context.Context, symbol string, from, to time.Time) (yahoo.PriceChart, error)
}

// UpdateOptions configures the orchestrator.
type UpdateOptions struct {
	StateDir           string
	StalenessThreshold time.Duration
	FailureTolerance   float64
	HistoryYears       int
	RefetchOverlapDays int
	IndicatorVersions  []string
}

// RunOptions are per-invocation switches.
type RunOptions struct {
	Force bool // bypass the staleness gate
}

// RunOutcome describes how a run ended. Run is nil unless an update_log row was written.
type RunOutcome struct {
	Outcome  Outcome
	Run      *model.UpdateRun
	Failures map[string]error
	Err      error
}

// UpdateService orchestrates an incremental update: lock, staleness gate, fetch,
// analysis, merge, indicator refresh and the update_log record.
type UpdateService struct {
	catalog    *CatalogService
	priceRepo  *repository.PriceRepository
	assetRepo  *repository.AssetRepository
	updateRepo *repository.UpdateRepository
	merge      *MergeService
	indicators *IndicatorService
	fetcher    ChartFetcher
	analyzer   *quality.Analyzer
	store      *state.Store
	opts       UpdateOptions
	logger     *slog.Logger
	now        func() time.Time
}

// NewUpdateService creates a new UpdateService with the provided dependencies.
func NewUpdateService(
	catalog *CatalogService,
	priceRepo *repository.PriceRepository,
	assetRepo *repository.AssetRepository,
	updateRepo *repository.UpdateRepository,
	merge *MergeService,
	indicators *IndicatorService,
	fetcher ChartFetcher,
	analyzer *quality.Analyzer,
	opts UpdateOptions,
	logger *slog.Logger,
) *UpdateService {
	return &UpdateService{
		catalog:    catalog,
		priceRepo:  priceRepo,
		assetRepo:  assetRepo,
		updateRepo: updateRepo,
		merge:      merge,
		indicators: indicators,
		fetcher:    fetcher,
		analyzer:   analyzer,
		store:      state.NewStore(opts.StateDir),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the orchestrator's notion of now.
func (s *UpdateService) WithClock(now func() time.Time) *UpdateService {
	s.now = now
	return s
}

// LastSuccess returns the persisted time of the last completed or partial run.
func (s *UpdateService) LastSuccess() (time.Time, error) {
	return s.store.LastSuccess()
}

// GetRuns returns recent update_log rows, newest first.
func (s *UpdateService) GetRuns(ctx context.Context, limit int) ([]model.UpdateRun, error) {
	return readRetry(ctx, func(ctx context.Context) ([]model.UpdateRun, error) {
		return s.updateRepo.GetRuns(ctx, limit)
	})
}

// GetLatestRun returns the newest update_log row with status, or any status when empty.
func (s *UpdateService) GetLatestRun(ctx context.Context, status model.RunStatus) (model.UpdateRun, error) {
	return s.updateRepo.GetLatestRun(ctx, status)
}

// Status reports whether the next non-forced run would pass the staleness gate,
// together with the newest update_log row.
func (s *UpdateService) Status(ctx context.Context) (model.UpdateStatus, error) {
	last, err := s.store.LastSuccess()
	if err != nil {
		s.logger.Warn("ignoring unreadable last success", "path", s.store.Path(), "error", err)
	}
	status := model.UpdateStatus{
		StalenessThreshold: s.opts.StalenessThreshold.String(),
		Due:                state.Gate(last, s.now().UTC(), s.opts.StalenessThreshold),
	}
	if !last.IsZero() {
		status.LastSuccess = &last
	}

	run, err := s.GetLatestRun(ctx, "")
	switch {
	case err == nil:
		status.LatestRun = &run
	case !errors.Is(err, apperrors.ErrUpdateRunNotFound):
		return model.UpdateStatus{}, err
	}
	return status, nil
}

// RunUpdate executes Run and converts the outcome to a process exit code.
func (s *UpdateService) RunUpdate(ctx context.Context, updateType string, opts RunOptions) int {
	outcome, err := s.Run(ctx, updateType, opts)
	if err != nil {
		s.logger.Error("update failed", "type", updateType, "error", err)
		return ExitFailed
	}
	return outcome.Outcome.ExitCode()
}

// fetchPlan is the provider window for one due symbol.
type fetchPlan struct {
	symbol string
	from   time.Time
	to     time.Time
}

// fetched is handed from the fetch goroutine to the processing goroutine.
type fetched struct {
	plan  fetchPlan
	chart yahoo.PriceChart
	err   error
}

// runStats is owned by the processing goroutine until the pipeline finishes.
type runStats struct {
	symbolsUpdated int
	inserted       int
	updated        int
	succeeded      int
	failures       map[string]error
	failedOrder    []string
}

// Run performs one update.
//
// The run lock is taken first; a live holder yields OutcomeAlreadyRunning. The
// staleness gate is evaluated next unless opts.Force is set; a recent success
// yields OutcomeSkipped. Neither writes an update_log row.
//
// Otherwise due instruments are fetched one at a time while the previous
// symbol is analysed, merged and has its indicators refreshed. A per-symbol
// fetch failure is recorded and the run continues. A provider rate-limit
// signal, a storage failure or cancellation of ctx ends the run as failed; the
// symbol being written when ctx is cancelled is still completed.
//
// Exactly one update_log row is written for every run that reaches this stage.
// The last-success timestamp advances only for completed and partially failed runs.
//
// Returns an error only for setup failures before any work started and for a
// failure to write the update_log row.
func (s *UpdateService) Run(ctx context.Context, updateType string, opts RunOptions) (RunOutcome, error) {
	for _, v := range s.opts.IndicatorVersions {
		if _, err := indicator.Lookup(v); err != nil {
			return RunOutcome{Outcome: OutcomeFailed, Err: err}, err
		}
	}

	lock, err := state.AcquireLock(s.opts.StateDir)
	if err != nil {
		var cre *apperrors.ConcurrentRunError
		if errors.As(err, &cre) {
			s.logger.Info("update already running", "pid", cre.PID, "lock", cre.LockPath)
			return RunOutcome{Outcome: OutcomeAlreadyRunning, Err: err}, nil
		}
		return RunOutcome{Outcome: OutcomeFailed, Err: err}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn("failed to release run lock", "error", err)
		}
	}()

	startedAt := s.now().UTC()

	if !opts.Force {
		last, err := s.store.LastSuccess()
		if err != nil {
			s.logger.Warn("ignoring unreadable last success", "path", s.store.Path(), "error", err)
		}
		if !state.Gate(last, startedAt, s.opts.StalenessThreshold) {
			s.logger.Info("update skipped: data is fresh",
				"last_success", last.Format(time.RFC3339),
				"threshold", s.opts.StalenessThreshold)
			return RunOutcome{Outcome: OutcomeSkipped}, nil
		}
	}

	s.logger.Info("update started", "type", updateType, "force", opts.Force)

	stats := &runStats{failures: make(map[string]error)}
	fatal := s.execute(ctx, startedAt, stats)

	return s.finish(ctx, updateType, startedAt, stats, fatal)
}

// execute runs the fetch/process pipeline and returns the error that aborted it, if any.
func (s *UpdateService) execute(ctx context.Context, startedAt time.Time, stats *runStats) error {
	plans, err := s.plan(ctx, startedAt)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrRunAborted, ctx.Err())
		}
		return apperrors.Storage("plan update", err)
	}

	items := make(chan fetched, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(items)
		for _, p := range plans {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", apperrors.ErrRunAborted, err)
			}

			chart, err := s.fetcher.FetchChart(gctx, p.symbol, p.from, p.to)
			if err != nil && gctx.Err() != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("%w: %w", apperrors.ErrRunAborted, ctx.Err())
				}
				return gctx.Err()
			}

			select {
			case items <- fetched{plan: p, chart: chart, err: err}:
			case <-gctx.Done():
				return gctx.Err()
			}

			var pe *apperrors.ProviderExhaustedError
			if errors.As(err, &pe) {
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		// Writes must not be interrupted half way through a symbol.
		writeCtx := context.WithoutCancel(gctx)
		for item := range items {
			if err := s.process(writeCtx, item, stats); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !apperrors.IsFatal(err) && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrRunAborted, err)
	}
	return err
}

// plan selects the due instruments and computes their fetch windows.
func (s *UpdateService) plan(ctx context.Context, startedAt time.Time) ([]fetchPlan, error) {
	assets, err := s.catalog.GetActiveAssets(ctx)
	if err != nil {
		return nil, err
	}
	lastDates, err := s.priceRepo.GetLastDates(ctx)
	if err != nil {
		return nil, err
	}

	today := model.TruncateDay(startedAt)
	plans := make([]fetchPlan, 0, len(assets))
	for _, a := range assets {
		if last, ok := lastDates[a.Symbol]; ok {
			a.LastDate = last
		}
		if !a.IsDue(startedAt) {
			s.logger.Debug("not due", "symbol", a.Symbol, "frequency", a.UpdateFrequency, "last_date", a.LastDate.Format(model.DateLayout))
			continue
		}

		p := fetchPlan{symbol: a.Symbol, to: today}
		if last, ok := lastDates[a.Symbol]; ok {
			p.from = last.AddDate(0, 0, 1-s.opts.RefetchOverlapDays)
		} else {
			p.from = today.AddDate(-s.opts.HistoryYears, 0, 0)
		}
		if p.from.After(p.to) {
			s.logger.Debug("up to date", "symbol", a.Symbol)
			continue
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// process handles one fetched symbol. A non-nil return aborts the run.
func (s *UpdateService) process(ctx context.Context, item fetched, stats *runStats) error {
	symbol := item.plan.symbol
	log := s.logger.With("symbol", symbol)

	if item.err != nil {
		stats.failures[symbol] = item.err
		stats.failedOrder = append(stats.failedOrder, symbol)
		log.Warn("fetch failed", "error", item.err)

		anomaly := model.QualityAnomaly{
			Symbol:      symbol,
			Date:        item.plan.to,
			IssueType:   model.IssueFetchError,
			Severity:    fetchErrorSeverity(item.err),
			Description: item.err.Error(),
			DetectedAt:  s.now().UTC(),
		}
		if _, err := s.merge.MergeAnalyzed(ctx, symbol, nil, []model.QualityAnomaly{anomaly}); err != nil {
			return err
		}
		if apperrors.IsFatal(item.err) {
			return item.err
		}
		return nil
	}

	stats.succeeded++
	if len(item.chart.Bars) == 0 {
		log.Info("no new data", "from", item.plan.from.Format(model.DateLayout), "to", item.plan.to.Format(model.DateLayout))
		return nil
	}

	first := model.TruncateDay(item.chart.Bars[0].Date)
	for _, b := range item.chart.Bars[1:] {
		if d := model.TruncateDay(b.Date); d.Before(first) {
			first = d
		}
	}
	tail, err := s.priceRepo.GetBarsBefore(ctx, symbol, first, 1)
	if err != nil {
		return apperrors.Storage("load prior bar "+symbol, err)
	}

	bars, anomalies := s.analyzer.Analyze(symbol, item.chart.Bars, tail)
	result, err := s.merge.MergeAnalyzed(ctx, symbol, bars, anomalies)
	if err != nil {
		return err
	}

	if err := s.assetRepo.FillDescriptors(ctx, symbol, item.chart.Name, item.chart.Currency, item.chart.Exchange); err != nil {
		return apperrors.Storage("fill descriptors "+symbol, err)
	}

	written := 0
	if changed := result.ChangedRange(); !changed.Empty() {
		for _, v := range s.opts.IndicatorVersions {
			n, err := s.indicators.Refresh(ctx, symbol, changed, v)
			if err != nil {
				return err
			}
			written += n
		}
	}

	stats.inserted += result.Inserted
	stats.updated += result.Updated
	if result.Inserted+result.Updated > 0 {
		stats.symbolsUpdated++
	}

	log.Info("symbol merged",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"rejected", result.Rejected,
		"changed", len(result.ChangedDates),
		"anomalies", len(anomalies),
		"indicators", written)
	return nil
}

// finish classifies the run, writes its update_log row and advances the gate.
func (s *UpdateService) finish(ctx context.Context, updateType string, startedAt time.Time, stats *runStats, fatal error) (RunOutcome, error) {
	outcome := OutcomeCompleted
	status := model.RunSuccess
	failed := len(stats.failures)

	switch {
	case fatal != nil:
		outcome, status = OutcomeFailed, model.RunFailed
	case failed == 0:
	case stats.succeeded > 0 && float64(failed)/float64(failed+stats.succeeded) < s.opts.FailureTolerance:
		outcome, status = OutcomePartial, model.RunPartial
	default:
		outcome, status = OutcomeFailed, model.RunFailed
	}

	var msgs []string
	if failed > 0 {
		msgs = append(msgs, "failed symbols: "+apperrors.JoinSymbols(stats.failures, stats.failedOrder))
	}
	if fatal != nil {
		msgs = append(msgs, "aborted: "+fatal.Error())
	}

	completedAt := s.now().UTC()
	run := model.UpdateRun{
		UpdateType:      updateType,
		SymbolsUpdated:  stats.symbolsUpdated,
		RecordsInserted: stats.inserted,
		RecordsUpdated:  stats.updated,
		DurationSeconds: completedAt.Sub(startedAt).Seconds(),
		Status:          status,
		ErrorMessage:    strings.Join(msgs, "; "),
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
	}

	result := RunOutcome{Outcome: outcome, Failures: stats.failures, Err: fatal}

	id, err := s.updateRepo.InsertRun(context.WithoutCancel(ctx), run)
	if err != nil {
		result.Outcome = OutcomeFailed
		return result, apperrors.Storage("record update run", err)
	}
	run.ID = id
	result.Run = &run

	if status == model.RunSuccess || status == model.RunPartial {
		if err := s.store.SetLastSuccess(startedAt); err != nil {
			s.logger.Error("failed to persist last success", "error", err)
		}
	}

	s.logger.Info("update finished",
		"outcome", outcome,
		"symbols_updated", run.SymbolsUpdated,
		"records_inserted", run.RecordsInserted,
		"records_updated", run.RecordsUpdated,
		"failed", failed,
		"duration", completedAt.Sub(startedAt).Round(time.Millisecond))
	return result, nil
}

// fetchErrorSeverity grades a fetch failure for data_quality_log.
func fetchErrorSeverity(err error) model.Severity {
	var pe *apperrors.ProviderExhaustedError
	var te *apperrors.TransientFetchError
	switch {
	case errors.As(err, &pe):
		return model.SeverityCritical
	case errors.As(err, &te):
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}
