package service_test

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/service"
	"github.com/ndewijer/market-data-store/internal/state"
	"github.com/ndewijer/market-data-store/internal/testutil"
	"github.com/ndewijer/market-data-store/internal/yahoo"
)

// runClock is the evening after the last scripted bar.
var runClock = time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)

func seedAsset(t *testing.T, db *sql.DB, symbol string) {
	t.Helper()
	testutil.NewAsset().WithSymbol(symbol).Build(t, db)
}

func flatCloses(n int, c float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = c
	}
	return closes
}

func getAnomalies(t *testing.T, db *sql.DB, symbol string) []model.QualityAnomaly {
	t.Helper()
	anomalies, err := repository.NewQualityRepository(db).GetAnomalies(context.Background(), model.QualityFilters{Symbol: symbol})
	if err != nil {
		t.Fatalf("failed to read anomalies: %v", err)
	}
	return anomalies
}

func getAsset(t *testing.T, db *sql.DB, symbol string) model.Asset {
	t.Helper()
	a, err := repository.NewAssetRepository(db).GetAsset(context.Background(), symbol)
	if err != nil {
		t.Fatalf("failed to read asset %s: %v", symbol, err)
	}
	return a
}

// TestUpdateService_AAPLScenario walks the canonical incremental update.
//
// WHY: stored bars end on 2025-01-10 and the provider returns 01-11..01-13 with a
// +33% close jump on 01-12. All three bars must be inserted, the jump recorded
// as one outlier, last_date moved to 01-13 and the run marked successful.
func TestUpdateService_AAPLScenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	testutil.SeedSeries(t, db, "AAPL", "2025-01-01", flatCloses(10, 1.2)...)

	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBarSeries("2025-01-10", 1.2, 1.2, 1.6, 1.6)...)
	opts := testutil.TestUpdateOptions(t)
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if outcome.Outcome != service.OutcomeCompleted {
		t.Errorf("Outcome = %s, want %s (err %v)", outcome.Outcome, service.OutcomeCompleted, outcome.Err)
	}
	if outcome.Run == nil || outcome.Run.Status != model.RunSuccess {
		t.Fatalf("expected a success update_log row, got %+v", outcome.Run)
	}
	if outcome.Run.RecordsInserted != 3 || outcome.Run.RecordsUpdated != 0 {
		t.Errorf("inserted/updated = %d/%d, want 3/0", outcome.Run.RecordsInserted, outcome.Run.RecordsUpdated)
	}
	if outcome.Run.SymbolsUpdated != 1 {
		t.Errorf("SymbolsUpdated = %d, want 1", outcome.Run.SymbolsUpdated)
	}

	calls := source.Calls()
	if len(calls) != 1 || calls[0].From.Format(model.DateLayout) != "2025-01-11" || calls[0].To.Format(model.DateLayout) != "2025-01-13" {
		t.Errorf("unexpected provider calls: %+v", calls)
	}

	testutil.AssertRowCount(t, db, "price_data", 13)
	testutil.AssertRowCount(t, db, "update_log", 1)

	anomalies := getAnomalies(t, db, "AAPL")
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	if anomalies[0].IssueType != model.IssueOutlier || anomalies[0].DateKey() != "2025-01-12" {
		t.Errorf("unexpected anomaly: %+v", anomalies[0])
	}

	bars, err := repository.NewPriceRepository(db).GetBars(context.Background(), "AAPL", testutil.MustDate("2025-01-12"), testutil.MustDate("2025-01-12"))
	if err != nil || len(bars) != 1 {
		t.Fatalf("expected outlier bar to be stored, got %v %v", bars, err)
	}
	if bars[0].Quality != model.QualityOutlier {
		t.Errorf("Quality = %s, want outlier", bars[0].Quality)
	}

	asset := getAsset(t, db, "AAPL")
	if got := asset.LastDate.Format(model.DateLayout); got != "2025-01-13" {
		t.Errorf("last_date = %s, want 2025-01-13", got)
	}
	if got := asset.FirstDate.Format(model.DateLayout); got != "2025-01-01" {
		t.Errorf("first_date = %s, want 2025-01-01", got)
	}

	last, err := state.NewStore(opts.StateDir).LastSuccess()
	if err != nil || !last.Equal(runClock) {
		t.Errorf("last success = %v (%v), want %v", last, err, runClock)
	}
}

// TestUpdateService_XYZScenario checks partial-failure isolation.
//
// WHY: a provider timeout for one symbol must not stop the others. With two of
// three symbols succeeding the run is partially failed, XYZ keeps its
// last_date and the failure is recorded in data_quality_log.
func TestUpdateService_XYZScenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	for _, sym := range []string{"AAPL", "MSFT", "XYZ"} {
		seedAsset(t, db, sym)
		testutil.SeedSeries(t, db, sym, "2025-01-01", flatCloses(10, 50)...)
	}

	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBarSeries("2025-01-11", 50, 51, 52)...).
		WithBars("MSFT", testutil.RawBarSeries("2025-01-11", 50, 49, 50)...).
		WithError("XYZ", context.DeadlineExceeded)
	opts := testutil.TestUpdateOptions(t)
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if outcome.Outcome != service.OutcomePartial {
		t.Fatalf("Outcome = %s, want %s", outcome.Outcome, service.OutcomePartial)
	}
	if outcome.Outcome.ExitCode() != service.ExitOK {
		t.Errorf("ExitCode = %d, want %d (gate advanced)", outcome.Outcome.ExitCode(), service.ExitOK)
	}
	if outcome.Run.Status != model.RunPartial {
		t.Errorf("Status = %s, want partial", outcome.Run.Status)
	}
	if !strings.Contains(outcome.Run.ErrorMessage, "XYZ") {
		t.Errorf("error_message should name XYZ: %q", outcome.Run.ErrorMessage)
	}
	if source.CallsFor("XYZ") != 4 {
		t.Errorf("expected 1 attempt + 3 retries for XYZ, got %d", source.CallsFor("XYZ"))
	}

	var tfe *apperrors.TransientFetchError
	if !errors.As(outcome.Failures["XYZ"], &tfe) {
		t.Errorf("expected TransientFetchError for XYZ, got %v", outcome.Failures["XYZ"])
	}

	if got := getAsset(t, db, "XYZ").LastDate.Format(model.DateLayout); got != "2025-01-10" {
		t.Errorf("XYZ last_date = %s, want unchanged 2025-01-10", got)
	}
	if got := getAsset(t, db, "AAPL").LastDate.Format(model.DateLayout); got != "2025-01-13" {
		t.Errorf("AAPL last_date = %s, want 2025-01-13", got)
	}

	anomalies := getAnomalies(t, db, "XYZ")
	if len(anomalies) != 1 || anomalies[0].IssueType != model.IssueFetchError {
		t.Errorf("expected one fetch_error anomaly for XYZ, got %+v", anomalies)
	}

	testutil.AssertRowCount(t, db, "update_log", 1)

	last, _ := state.NewStore(opts.StateDir).LastSuccess()
	if last.IsZero() {
		t.Error("partial run must advance last success")
	}
}

// TestUpdateService_StalenessGate pins the gate at the default 23h threshold.
//
// WHY: an invocation within 23h of the last success must neither fetch nor
// write an update_log row; one just after must do both, exactly once.
func TestUpdateService_StalenessGate(t *testing.T) {
	lastSuccess := time.Date(2025, 1, 12, 22, 30, 0, 0, time.UTC)

	setup := func(t *testing.T) (*sql.DB, *testutil.MockChartSource, service.UpdateOptions) {
		t.Helper()
		db := testutil.SetupTestDB(t)
		seedAsset(t, db, "AAPL")
		testutil.SeedSeries(t, db, "AAPL", "2025-01-01", flatCloses(10, 1.2)...)
		source := testutil.NewMockChartSource().
			WithBars("AAPL", testutil.RawBarSeries("2025-01-11", 1.2, 1.2, 1.2)...)
		opts := testutil.TestUpdateOptions(t)
		if err := state.NewStore(opts.StateDir).SetLastSuccess(lastSuccess); err != nil {
			t.Fatal(err)
		}
		return db, source, opts
	}

	t.Run("T+22h59m skips", func(t *testing.T) {
		db, source, opts := setup(t)
		now := lastSuccess.Add(22*time.Hour + 59*time.Minute)
		svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(now))

		outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if outcome.Outcome != service.OutcomeSkipped {
			t.Errorf("Outcome = %s, want skipped", outcome.Outcome)
		}
		if len(source.Calls()) != 0 {
			t.Errorf("expected no fetch, got %d calls", len(source.Calls()))
		}
		testutil.AssertRowCount(t, db, "update_log", 0)
	})

	t.Run("T+23h01m runs", func(t *testing.T) {
		db, source, opts := setup(t)
		now := lastSuccess.Add(23*time.Hour + time.Minute)
		svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(now))

		outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if outcome.Outcome != service.OutcomeCompleted {
			t.Errorf("Outcome = %s, want completed", outcome.Outcome)
		}
		if len(source.Calls()) == 0 {
			t.Error("expected a fetch")
		}
		testutil.AssertRowCount(t, db, "update_log", 1)
	})

	t.Run("force bypasses the gate", func(t *testing.T) {
		db, source, opts := setup(t)
		now := lastSuccess.Add(time.Hour)
		svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(now))

		outcome, err := svc.Run(context.Background(), "manual", service.RunOptions{Force: true})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if outcome.Outcome != service.OutcomeCompleted {
			t.Errorf("Outcome = %s, want completed", outcome.Outcome)
		}
		testutil.AssertRowCount(t, db, "update_log", 1)
	})
}

func TestUpdateService_AlreadyRunning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	source := testutil.NewMockChartSource()
	opts := testutil.TestUpdateOptions(t)

	lock, err := state.AcquireLock(opts.StateDir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))
	outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if outcome.Outcome != service.OutcomeAlreadyRunning {
		t.Errorf("Outcome = %s, want already_running", outcome.Outcome)
	}
	if outcome.Outcome.ExitCode() != service.ExitOK {
		t.Errorf("already running must exit 0, got %d", outcome.Outcome.ExitCode())
	}
	if len(source.Calls()) != 0 {
		t.Error("expected no fetch while another run holds the lock")
	}
	testutil.AssertRowCount(t, db, "update_log", 0)
}

// TestUpdateService_ProviderExhausted verifies that a rate-limit signal stops the run.
//
// WHY: continuing to hammer a provider that answered 429 risks a longer ban; no
// further symbol may be fetched and the gate must not advance.
func TestUpdateService_ProviderExhausted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAA")
	seedAsset(t, db, "BBB")

	source := testutil.NewMockChartSource().
		WithError("AAA", &yahoo.StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Minute}).
		WithBars("BBB", testutil.RawBarSeries("2025-01-11", 10, 10)...)
	opts := testutil.TestUpdateOptions(t)
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if outcome.Outcome != service.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", outcome.Outcome)
	}
	var pe *apperrors.ProviderExhaustedError
	if !errors.As(outcome.Err, &pe) {
		t.Errorf("expected ProviderExhaustedError, got %v", outcome.Err)
	}
	if source.CallsFor("AAA") != 1 {
		t.Errorf("rate limit must not be retried, got %d calls", source.CallsFor("AAA"))
	}
	if source.CallsFor("BBB") != 0 {
		t.Error("no fetch may follow a rate-limit signal")
	}
	if outcome.Run == nil || outcome.Run.Status != model.RunFailed {
		t.Errorf("expected failed update_log row, got %+v", outcome.Run)
	}
	testutil.AssertRowCount(t, db, "update_log", 1)
	testutil.AssertRowCount(t, db, "price_data", 0)

	last, _ := state.NewStore(opts.StateDir).LastSuccess()
	if !last.IsZero() {
		t.Errorf("failed run advanced last success to %v", last)
	}
}

func TestUpdateService_MostlyFailedIsFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAA")
	seedAsset(t, db, "BBB")

	source := testutil.NewMockChartSource().
		WithBars("AAA", testutil.RawBarSeries("2025-01-11", 10, 10)...).
		WithError("BBB", &yahoo.ChartError{Code: "Bad Request", Description: "Invalid symbol"})
	opts := testutil.TestUpdateOptions(t)
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	if code := svc.RunUpdate(context.Background(), "daily", service.RunOptions{}); code != service.ExitFailed {
		t.Errorf("RunUpdate() = %d, want %d (1 of 2 failed reaches the 0.5 tolerance)", code, service.ExitFailed)
	}

	run, err := svc.GetLatestRun(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != model.RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
}

func TestUpdateService_Cancelled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBarSeries("2025-01-11", 10, 10)...)
	opts := testutil.TestUpdateOptions(t)
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := svc.Run(ctx, "daily", service.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if outcome.Outcome != service.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", outcome.Outcome)
	}
	if !errors.Is(outcome.Err, apperrors.ErrRunAborted) {
		t.Errorf("expected ErrRunAborted, got %v", outcome.Err)
	}
	testutil.AssertRowCount(t, db, "update_log", 1)

	last, _ := state.NewStore(opts.StateDir).LastSuccess()
	if !last.IsZero() {
		t.Error("aborted run must not advance last success")
	}
}

// TestUpdateService_IncompletenessLaw feeds a bar without volume through a full run.
//
// WHY: a bar missing a required field must never reach price_data and must be
// logged exactly once as incomplete, while its neighbours are stored normally.
func TestUpdateService_IncompletenessLaw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	testutil.SeedSeries(t, db, "AAPL", "2025-01-01", flatCloses(10, 1.2)...)

	partial := testutil.RawBar("2025-01-12", 1.2)
	partial.Volume = nil
	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBar("2025-01-11", 1.2), partial, testutil.RawBar("2025-01-13", 1.2))
	svc := testutil.NewTestUpdateService(t, db, source, testutil.TestUpdateOptions(t)).
		WithClock(testutil.FixedClock(runClock))

	if _, err := svc.Run(context.Background(), "daily", service.RunOptions{}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	bars, err := repository.NewPriceRepository(db).GetBars(context.Background(), "AAPL", testutil.MustDate("2025-01-11"), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 stored bars, got %d", len(bars))
	}
	for _, b := range bars {
		if b.DateKey() == "2025-01-12" {
			t.Error("incomplete bar was stored")
		}
	}

	anomalies := getAnomalies(t, db, "AAPL")
	count := 0
	for _, a := range anomalies {
		if a.IssueType == model.IssueIncomplete {
			count++
			if a.DateKey() != "2025-01-12" || !strings.Contains(a.Description, "volume") {
				t.Errorf("unexpected incomplete anomaly: %+v", a)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 incomplete anomaly, got %d", count)
	}
}

// TestUpdateService_RefetchIsIdempotent re-fetches an overlap window on a second run.
//
// WHY: provider corrections arrive through overlapping refetches, so reprocessing
// bars that are already stored must overwrite in place without duplicating rows.
func TestUpdateService_RefetchIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	testutil.SeedSeries(t, db, "AAPL", "2025-01-01", flatCloses(10, 1.2)...)

	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBarSeries("2025-01-11", 1.2, 1.3, 1.25)...)
	opts := testutil.TestUpdateOptions(t)
	opts.RefetchOverlapDays = 3
	svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))

	first, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := repository.NewPriceRepository(db).GetBars(context.Background(), "AAPL", time.Time{}, time.Time{})

	second, err := svc.Run(context.Background(), "daily", service.RunOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := repository.NewPriceRepository(db).GetBars(context.Background(), "AAPL", time.Time{}, time.Time{})

	if first.Run.RecordsInserted != 3 {
		t.Errorf("first run inserted %d, want 3", first.Run.RecordsInserted)
	}
	if second.Run.RecordsInserted != 0 || second.Run.RecordsUpdated != 3 {
		t.Errorf("second run inserted/updated = %d/%d, want 0/3", second.Run.RecordsInserted, second.Run.RecordsUpdated)
	}
	if len(before) != len(after) {
		t.Fatalf("row count changed from %d to %d", len(before), len(after))
	}
	for i := range before {
		if !before[i].SameContent(after[i]) {
			t.Errorf("row %s changed: %+v -> %+v", before[i].DateKey(), before[i], after[i])
		}
	}
}

func TestUpdateService_Cadence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.NewAsset().WithSymbol("WEEKLY").WithFrequency(model.FrequencyWeekly).Build(t, db)
	testutil.SeedSeries(t, db, "WEEKLY", "2025-01-01", flatCloses(10, 5)...)
	testutil.NewAsset().WithSymbol("OFF").Inactive().Build(t, db)
	seedAsset(t, db, "NEW")

	source := testutil.NewMockChartSource().
		WithBars("NEW", testutil.RawBarSeries("2024-06-03", 7, 7, 7)...)
	svc := testutil.NewTestUpdateService(t, db, source, testutil.TestUpdateOptions(t)).
		WithClock(testutil.FixedClock(runClock))

	outcome, err := svc.Run(context.Background(), "daily", service.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Outcome != service.OutcomeCompleted {
		t.Errorf("Outcome = %s, want completed", outcome.Outcome)
	}
	if source.CallsFor("WEEKLY") != 0 {
		t.Error("weekly asset with a 3 day old bar is not due")
	}
	if source.CallsFor("OFF") != 0 {
		t.Error("inactive asset must not be fetched")
	}

	calls := source.Calls()
	if len(calls) != 1 || calls[0].Symbol != "NEW" {
		t.Fatalf("expected a single fetch for NEW, got %+v", calls)
	}
	if got := calls[0].From.Format(model.DateLayout); got != "2024-01-13" {
		t.Errorf("history window starts %s, want 2024-01-13", got)
	}
	testutil.AssertRowCount(t, db, "price_data", 13)
}

func TestUpdateService_Status(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	seedAsset(t, db, "AAPL")
	source := testutil.NewMockChartSource().
		WithBars("AAPL", testutil.RawBarSeries("2025-01-10", 1.2, 1.2, 1.2)...)
	opts := testutil.TestUpdateOptions(t)

	t.Run("never run is due", func(t *testing.T) {
		svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))
		status, err := svc.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error: %v", err)
		}
		if !status.Due || status.LastSuccess != nil || status.LatestRun != nil {
			t.Errorf("Unexpected status %+v", status)
		}
		if status.StalenessThreshold != "23h0m0s" {
			t.Errorf("StalenessThreshold = %q", status.StalenessThreshold)
		}
	})

	t.Run("after a run", func(t *testing.T) {
		svc := testutil.NewTestUpdateService(t, db, source, opts).WithClock(testutil.FixedClock(runClock))
		if _, err := svc.Run(ctx, "daily", service.RunOptions{}); err != nil {
			t.Fatal(err)
		}

		status, err := svc.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error: %v", err)
		}
		if status.Due {
			t.Error("Expected gate to be closed right after a successful run")
		}
		if status.LastSuccess == nil || !status.LastSuccess.Equal(runClock) {
			t.Errorf("LastSuccess = %v, want %s", status.LastSuccess, runClock)
		}
		if status.LatestRun == nil || status.LatestRun.UpdateType != "daily" {
			t.Errorf("LatestRun = %+v", status.LatestRun)
		}
	})
}
