package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ndewijer/market-data-store/internal/apperrors"
)

// symbolPattern accepts provider tickers such as AAPL, BRK-B, ^GSPC, GC=F and ASML.AS.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,19}$`)

// indexNamePattern accepts lower-case index identifiers such as sp500 and nasdaq100.
var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,31}$`)

// ValidateIndexName checks a normalized index identifier.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidIndexName, name)
	}
	return nil
}

// NormalizeIndexName trims and lower-cases an index identifier.
func NormalizeIndexName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateSymbol checks that a symbol is a plausible provider ticker.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidSymbol, symbol)
	}
	return nil
}

// NormalizeSymbol trims and upper-cases a symbol before validation.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateDateRange checks that from is not after to. Zero bounds are open.
func ValidateDateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return fmt.Errorf("%w: %s is after %s", apperrors.ErrInvalidDateRange,
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return nil
}
