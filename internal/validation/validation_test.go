package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		ok     bool
	}{
		{"AAPL", true},
		{"BRK-B", true},
		{"^GSPC", true},
		{"GC=F", true},
		{"ASML.AS", true},
		{"BTC-USD", true},
		{"", false},
		{"aapl", false},
		{"AA PL", false},
		{"-AAPL", false},
		{"ABCDEFGHIJKLMNOPQRSTU", false},
		{"../etc", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateSymbol(%q) = %v, want ok=%v", tt.symbol, err, tt.ok)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidSymbol) {
				t.Errorf("expected ErrInvalidSymbol, got %v", err)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol("  brk-b "); got != "BRK-B" {
		t.Errorf("NormalizeSymbol() = %q, want BRK-B", got)
	}
}

func TestValidateIndexName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"sp500", true},
		{"nasdaq100", true},
		{"ftse_100", true},
		{"euro-stoxx-50", true},
		{"", false},
		{"SP500", false},
		{"_sp500", false},
		{"sp 500", false},
		{"../indices", false},
		{"abcdefghijklmnopqrstuvwxyz0123456", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIndexName(tt.name)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateIndexName(%q) = %v, want ok=%v", tt.name, err, tt.ok)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidIndexName) {
				t.Errorf("expected ErrInvalidIndexName, got %v", err)
			}
		})
	}

	if got := NormalizeIndexName(" SP500 "); got != "sp500" {
		t.Errorf("NormalizeIndexName() = %q, want sp500", got)
	}
}

func TestValidateDateRange(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("ordered", func(t *testing.T) {
		if err := ValidateDateRange(jan, feb); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	t.Run("same day", func(t *testing.T) {
		if err := ValidateDateRange(jan, jan); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	t.Run("open bounds", func(t *testing.T) {
		if err := ValidateDateRange(time.Time{}, jan); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := ValidateDateRange(feb, time.Time{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	t.Run("reversed", func(t *testing.T) {
		if err := ValidateDateRange(feb, jan); !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("expected ErrInvalidDateRange, got %v", err)
		}
	})
}

func TestValidateAsset(t *testing.T) {
	valid := model.Asset{
		Symbol:          "AAPL",
		Name:            "Apple Inc.",
		AssetType:       "stock",
		Currency:        "USD",
		Exchange:        "NASDAQ",
		UpdateFrequency: model.FrequencyDaily,
		Timeframe:       "1d",
	}

	if err := ValidateAsset(valid); err != nil {
		t.Fatalf("valid asset rejected: %v", err)
	}

	tests := []struct {
		name   string
		field  string
		mutate func(a *model.Asset)
	}{
		{"missing symbol", "symbol", func(a *model.Asset) { a.Symbol = "" }},
		{"bad symbol", "symbol", func(a *model.Asset) { a.Symbol = "A B" }},
		{"unknown type", "asset_type", func(a *model.Asset) { a.AssetType = "nft" }},
		{"long currency", "currency", func(a *model.Asset) { a.Currency = "DOLLAR" }},
		{"long exchange", "exchange", func(a *model.Asset) { a.Exchange = "NEW YORK STOCK EXCHANGE" }},
		{"unknown frequency", "update_frequency", func(a *model.Asset) { a.UpdateFrequency = "hourly" }},
		{"intraday timeframe", "timeframe", func(a *model.Asset) { a.Timeframe = "1h" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := ValidateAsset(a)
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("expected %s field error, got %v", tt.field, verr.Fields)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	err := &Error{Fields: map[string]string{"symbol": "bad", "currency": "worse"}}
	if got := err.Error(); got != "currency: worse; symbol: bad" {
		t.Errorf("Error() = %q", got)
	}
}
