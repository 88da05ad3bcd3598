package testutil

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/fetcher"
	"github.com/ndewijer/market-data-store/internal/logging"
	"github.com/ndewijer/market-data-store/internal/quality"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/service"
)

// DefaultThresholds mirrors the production defaults of the quality analyzer.
var DefaultThresholds = quality.Thresholds{GapDays: 7, Outlier: 0.20}

func NewTestCatalogService(t *testing.T, db *sql.DB) *service.CatalogService {
	t.Helper()

	return service.NewCatalogService(
		db,
		repository.NewAssetRepository(db),
		repository.NewPriceRepository(db),
		repository.NewMembershipRepository(db),
	)
}

func NewTestMergeService(t *testing.T, db *sql.DB) *service.MergeService {
	t.Helper()

	return service.NewMergeService(
		db,
		repository.NewPriceRepository(db),
		repository.NewAssetRepository(db),
		repository.NewQualityRepository(db),
	)
}

func NewTestIndicatorService(t *testing.T, db *sql.DB) *service.IndicatorService {
	t.Helper()

	return service.NewIndicatorService(
		db,
		repository.NewPriceRepository(db),
		repository.NewIndicatorRepository(db),
	)
}

func NewTestQualityService(t *testing.T, db *sql.DB) *service.QualityService {
	t.Helper()

	return service.NewQualityService(repository.NewQualityRepository(db))
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// TestUpdateOptions returns orchestrator options with production thresholds, a
// one-year history window and a private state directory.
func TestUpdateOptions(t *testing.T) service.UpdateOptions {
	t.Helper()

	return service.UpdateOptions{
		StateDir:           t.TempDir(),
		StalenessThreshold: 23 * time.Hour,
		FailureTolerance:   0.5,
		HistoryYears:       1,
		IndicatorVersions:  []string{"v1"},
	}
}

// NewTestUpdateService wires an orchestrator against db and a provider double.
// The throttle is disabled and retries back off for a millisecond.
//
// Example usage:
//
//	source := testutil.NewMockChartSource().WithBars("AAPL", testutil.RawBarSeries("2025-01-10", 1.2, 1.6)...)
//	svc := testutil.NewTestUpdateService(t, db, source, testutil.TestUpdateOptions(t))
func NewTestUpdateService(t *testing.T, db *sql.DB, source fetcher.ChartSource, opts service.UpdateOptions) *service.UpdateService {
	t.Helper()

	logger := logging.Discard()
	f := fetcher.New(source, fetcher.NewThrottle(0), fetcher.Options{
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}, logger)

	return service.NewUpdateService(
		NewTestCatalogService(t, db),
		repository.NewPriceRepository(db),
		repository.NewAssetRepository(db),
		repository.NewUpdateRepository(db),
		NewTestMergeService(t, db),
		NewTestIndicatorService(t, db),
		f,
		quality.NewAnalyzer(DefaultThresholds, "yahoo"),
		opts,
		logger,
	)
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// AssertRowCount fails the test when table does not hold want rows.
func AssertRowCount(t *testing.T, db *sql.DB, table string, want int) {
	t.Helper()

	var got int
	//nolint:gosec // G202: table names come from test code only
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&got); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	if got != want {
		t.Errorf("expected %d rows in %s, got %d", want, table, got)
	}
}

// MakeSymbol generates a ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// MakeAssetName generates a unique instrument name for testing.
//
// Example usage:
//
//	name := testutil.MakeAssetName("Gold Futures")
//	// Returns: "Gold Futures XYZ789"
func MakeAssetName(base string) string {
	if base == "" {
		base = "Asset"
	}
	return base + " " + randomAlphanumeric(6)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// Common test constants

var (
	// CommonCurrencies contains frequently used currency codes
	CommonCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CAD", "CHF", "AUD"}

	// CommonExchanges contains frequently used exchange codes
	CommonExchanges = []string{"NMS", "NYQ", "LSE", "TYO", "GER", "AMS", "CMX"}
)

// RandomCurrency returns a random currency from CommonCurrencies.
func RandomCurrency() string {
	//nolint:gosec // G404: Using math/rand for test data generation is acceptable
	return CommonCurrencies[rand.Intn(len(CommonCurrencies))]
}

// RandomExchange returns a random exchange from CommonExchanges.
func RandomExchange() string {
	//nolint:gosec // G404: Using math/rand for test data generation is acceptable
	return CommonExchanges[rand.Intn(len(CommonExchanges))]
}
