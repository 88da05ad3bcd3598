// Package request parses and validates query parameters of API requests.
package request

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/validation"
)

// Default and maximum page sizes for list endpoints.
const (
	DefaultRunLimit     = 20
	MaxRunLimit         = 500
	DefaultQualityLimit = 100
	MaxQualityLimit     = 1000
)

// ParseDateRange parses optional start_date and end_date parameters (YYYY-MM-DD).
// Missing bounds are returned as zero times, which repositories treat as open.
//
// Returns an error if either date is malformed or start_date is after end_date.
func ParseDateRange(startParam, endParam string) (from, to time.Time, err error) {
	if startParam != "" {
		if from, err = time.Parse(model.DateLayout, startParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
	}
	if endParam != "" {
		if to, err = time.Parse(model.DateLayout, endParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
	}
	if err := validation.ValidateDateRange(from, to); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// ParseLimit parses a limit parameter between 1 and maxLimit, defaulting to def.
func ParseLimit(param string, def, maxLimit int) (int, error) {
	if param == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(param)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: must be a number")
	}
	if limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("invalid limit: must be between 1 and %d", maxLimit)
	}
	return limit, nil
}

// ParseQualityFilters builds data_quality_log filters from the symbol, issue_type
// and limit parameters. All parameters are optional.
func ParseQualityFilters(symbolParam, issueTypeParam, limitParam string) (model.QualityFilters, error) {
	var filters model.QualityFilters

	if symbolParam != "" {
		symbol := validation.NormalizeSymbol(symbolParam)
		if err := validation.ValidateSymbol(symbol); err != nil {
			return filters, err
		}
		filters.Symbol = symbol
	}

	if issueTypeParam != "" {
		issueType := model.IssueType(strings.ToLower(strings.TrimSpace(issueTypeParam)))
		if !model.ValidIssueTypes[issueType] {
			return filters, fmt.Errorf("invalid issue_type: %s", issueTypeParam)
		}
		filters.IssueType = issueType
	}

	limit, err := ParseLimit(limitParam, DefaultQualityLimit, MaxQualityLimit)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	return filters, nil
}
