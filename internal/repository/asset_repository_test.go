package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/testutil"
)

func TestAssetRepository_GetAssets(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewAssetRepository(db)

	testutil.NewAsset().WithSymbol("MSFT").WithName("Microsoft").Build(t, db)
	testutil.NewAsset().WithSymbol("GC=F").WithType("commodity").WithGroup("metals").Build(t, db)
	testutil.NewAsset().WithSymbol("OLD").Inactive().Build(t, db)

	active, err := repo.GetAssets(ctx, true)
	if err != nil {
		t.Fatalf("GetAssets() error: %v", err)
	}
	if len(active) != 2 || active[0].Symbol != "GC=F" || active[1].Symbol != "MSFT" {
		t.Errorf("Unexpected active assets %+v", active)
	}
	if active[0].AssetGroup != "metals" || active[1].Name != "Microsoft" {
		t.Errorf("Descriptors not read back: %+v", active)
	}

	all, _ := repo.GetAssets(ctx, false)
	if len(all) != 3 {
		t.Errorf("Expected 3 assets, got %d", len(all))
	}

	if _, err := repo.GetAsset(ctx, "NOPE"); !errors.Is(err, apperrors.ErrAssetNotFound) {
		t.Errorf("Expected ErrAssetNotFound, got %v", err)
	}
}

func TestAssetRepository_UpsertAsset(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewAssetRepository(db)
	now := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)

	testutil.NewAsset().WithSymbol("AAPL").WithDates("2020-01-02", "2025-01-10").Build(t, db)

	err := repo.UpsertAsset(ctx, model.Asset{
		Symbol:          "AAPL",
		Name:            "Apple Inc.",
		AssetType:       "stock",
		Currency:        "USD",
		UpdateFrequency: model.FrequencyWeekly,
		Timeframe:       "1d",
		IsActive:        true,
	}, now)
	if err != nil {
		t.Fatalf("UpsertAsset() error: %v", err)
	}

	a, _ := repo.GetAsset(ctx, "AAPL")
	if a.Name != "Apple Inc." || a.UpdateFrequency != model.FrequencyWeekly {
		t.Errorf("Descriptors not replaced: %+v", a)
	}
	if a.FirstDate.Format(model.DateLayout) != "2020-01-02" || a.LastDate.Format(model.DateLayout) != "2025-01-10" {
		t.Errorf("Coverage lost: %s..%s", a.FirstDate, a.LastDate)
	}
	if !a.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %s, want %s", a.UpdatedAt, now)
	}
}

func TestAssetRepository_UpdateCoverage(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewAssetRepository(db)
	now := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)

	coverage := model.AssetCoverage{
		FirstDate:    testutil.MustDate("2025-01-06"),
		LastDate:     testutil.MustDate("2025-01-10"),
		Bars:         5,
		OKBars:       4,
		VolumeBars:   5,
		CompleteOHLC: true,
	}

	t.Run("creates a missing catalog row", func(t *testing.T) {
		if err := repo.UpdateCoverage(ctx, "NEW", coverage, now); err != nil {
			t.Fatalf("UpdateCoverage() error: %v", err)
		}
		a, err := repo.GetAsset(ctx, "NEW")
		if err != nil {
			t.Fatal(err)
		}
		if a.LastDate.Format(model.DateLayout) != "2025-01-10" || !a.HasOHLC || !a.HasVolume || a.QualityScore != 0.9 {
			t.Errorf("Unexpected coverage %+v", a)
		}
	})

	t.Run("fills only empty descriptors", func(t *testing.T) {
		testutil.NewAsset().WithSymbol("AAPL").WithName("Apple").Build(t, db)
		if err := repo.FillDescriptors(ctx, "AAPL", "Apple Inc.", "USD", "NMS"); err != nil {
			t.Fatalf("FillDescriptors() error: %v", err)
		}
		if err := repo.FillDescriptors(ctx, "NEW", "New Corp", "EUR", "AMS"); err != nil {
			t.Fatalf("FillDescriptors() error: %v", err)
		}

		aapl, _ := repo.GetAsset(ctx, "AAPL")
		if aapl.Name != "Apple" {
			t.Errorf("Existing name overwritten: %q", aapl.Name)
		}
		created, _ := repo.GetAsset(ctx, "NEW")
		if created.Name != "New Corp" || created.Exchange != "AMS" {
			t.Errorf("Empty descriptors not filled: %+v", created)
		}
	})
}

func TestAssetRepository_Activation(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewAssetRepository(db)
	now := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)

	testutil.NewAsset().WithSymbol("AAPL").WithGroup("tech").Inactive().Build(t, db)
	testutil.NewAsset().WithSymbol("XOM").Inactive().Build(t, db)

	t.Run("keeps an existing primary group", func(t *testing.T) {
		if err := repo.ActivateInGroup(ctx, "AAPL", "sp500", now); err != nil {
			t.Fatalf("ActivateInGroup() error: %v", err)
		}
		a, _ := repo.GetAsset(ctx, "AAPL")
		if !a.IsActive || a.AssetGroup != "tech" {
			t.Errorf("Expected active asset in group tech, got active=%v group=%q", a.IsActive, a.AssetGroup)
		}
	})

	t.Run("fills a missing primary group", func(t *testing.T) {
		if err := repo.ActivateInGroup(ctx, "XOM", "sp500", now); err != nil {
			t.Fatalf("ActivateInGroup() error: %v", err)
		}
		a, _ := repo.GetAsset(ctx, "XOM")
		if !a.IsActive || a.AssetGroup != "sp500" {
			t.Errorf("Expected active asset in group sp500, got active=%v group=%q", a.IsActive, a.AssetGroup)
		}
	})

	t.Run("deactivates", func(t *testing.T) {
		if err := repo.SetActive(ctx, "XOM", false, now); err != nil {
			t.Fatalf("SetActive() error: %v", err)
		}
		a, _ := repo.GetAsset(ctx, "XOM")
		if a.IsActive {
			t.Error("Expected XOM to be inactive")
		}
	})

	t.Run("unknown symbol", func(t *testing.T) {
		if err := repo.ActivateInGroup(ctx, "NOPE", "sp500", now); !errors.Is(err, apperrors.ErrAssetNotFound) {
			t.Errorf("Expected ErrAssetNotFound, got %v", err)
		}
		if err := repo.SetActive(ctx, "NOPE", true, now); !errors.Is(err, apperrors.ErrAssetNotFound) {
			t.Errorf("Expected ErrAssetNotFound, got %v", err)
		}
	})
}
