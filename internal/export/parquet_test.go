package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/export"
	"github.com/ndewijer/market-data-store/internal/logging"
	"github.com/ndewijer/market-data-store/internal/testutil"
)

func TestExporter_ExportSymbol(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	testutil.NewAsset().WithSymbol("GC=F").WithType("commodity").Build(t, db)
	testutil.SeedSeries(t, db, "GC=F", "2025-01-06", 2600, 2610, 2620)

	dir := filepath.Join(t.TempDir(), "export")
	exp := export.NewExporter(testutil.NewTestCatalogService(t, db), dir, logging.Discard())

	n, err := exp.ExportSymbol(ctx, "GC=F")
	if err != nil {
		t.Fatalf("ExportSymbol() error: %v", err)
	}
	if n != 3 {
		t.Errorf("exported %d rows, want 3", n)
	}

	rows, err := parquet.ReadFile[export.Bar](exp.Path("GC=F"))
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("snapshot has %d rows, want 3", len(rows))
	}
	// 2025-01-06 is day 20094 after the epoch
	if rows[0].Date != 20094 || rows[0].Close != 2600 || rows[2].Close != 2620 {
		t.Errorf("unexpected first/last rows %+v / %+v", rows[0], rows[2])
	}
	if rows[0].Quality != "ok" {
		t.Errorf("Quality = %q, want ok", rows[0].Quality)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("export dir holds %d entries, want only the snapshot", len(entries))
	}
}

func TestExporter_ExportAll(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	testutil.NewAsset().WithSymbol("AAPL").Build(t, db)
	testutil.NewAsset().WithSymbol("MSFT").Inactive().Build(t, db)
	testutil.SeedSeries(t, db, "AAPL", "2025-01-06", 230, 231)

	exp := export.NewExporter(testutil.NewTestCatalogService(t, db), t.TempDir(), logging.Discard())
	counts, err := exp.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll() error: %v", err)
	}
	if counts["AAPL"] != 2 || counts["MSFT"] != 0 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}
	if _, err := os.Stat(exp.Path("MSFT")); err != nil {
		t.Errorf("empty history should still produce a snapshot: %v", err)
	}
}

func TestExporter_UnknownSymbol(t *testing.T) {
	db := testutil.SetupTestDB(t)
	exp := export.NewExporter(testutil.NewTestCatalogService(t, db), t.TempDir(), logging.Discard())

	if _, err := exp.ExportSymbol(context.Background(), "NOPE"); !errors.Is(err, apperrors.ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
}
