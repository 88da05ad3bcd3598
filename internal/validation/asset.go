package validation

import (
	"fmt"
	"strings"

	"github.com/ndewijer/market-data-store/internal/model"
)

var ValidAssetType = map[string]bool{
	"stock": true, "etf": true, "index": true, "commodity": true,
	"crypto": true, "currency": true, "bond": true, "fund": true,
}

var ValidTimeframe = map[string]bool{
	"1d": true,
}

// ValidateAsset checks a catalog entry before it is written to asset_metadata.
func ValidateAsset(a model.Asset) error {
	errors := make(map[string]string)

	if strings.TrimSpace(a.Symbol) == "" {
		errors["symbol"] = "symbol is required"
	} else if err := ValidateSymbol(a.Symbol); err != nil {
		errors["symbol"] = err.Error()
	}

	if len(a.Name) > 200 {
		errors["name"] = "name must be 200 characters or less"
	}

	if a.AssetType != "" && !ValidAssetType[a.AssetType] {
		errors["asset_type"] = fmt.Sprintf("invalid asset type: %s", a.AssetType)
	}

	if a.Currency != "" && len(a.Currency) != 3 {
		errors["currency"] = "currency must be a 3 letter code (USD, EUR)"
	}

	if len(a.Exchange) > 15 {
		errors["exchange"] = "exchange must be 15 characters or less (NYSE, AMS)"
	}

	if !model.ValidUpdateFrequencies[a.UpdateFrequency] {
		errors["update_frequency"] = fmt.Sprintf("invalid update frequency: %s", a.UpdateFrequency)
	}

	if !ValidTimeframe[a.Timeframe] {
		errors["timeframe"] = fmt.Sprintf("unsupported timeframe: %s", a.Timeframe)
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
