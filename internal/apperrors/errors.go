package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain entity errors represent missing entities in the store.
var (
	// ErrAssetNotFound indicates that no asset_metadata row exists for the symbol.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrNoPriceData indicates that a symbol has no stored bars in the requested range.
	ErrNoPriceData = errors.New("no price data")

	// ErrUpdateRunNotFound indicates that update_log has no matching row.
	ErrUpdateRunNotFound = errors.New("update run not found")

	// ErrIndexNotFound indicates that no membership, active or former, exists for the index.
	ErrIndexNotFound = errors.New("index not found")
)

// Business logic errors represent validation failures or constraint violations.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidSymbol indicates that a symbol is empty or contains unsupported characters.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrUnknownIndicatorVersion indicates that no formula set is registered for the version.
	ErrUnknownIndicatorVersion = errors.New("unknown indicator version")

	// ErrUnknownIndicator indicates that an indicator name is not part of a version.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrInvalidIndexName indicates an index name outside [a-z0-9_-].
	ErrInvalidIndexName = errors.New("invalid index name")

	// ErrEmptyConstituents indicates a constituent list without symbols. Syncing it
	// would deactivate every member, so it is rejected.
	ErrEmptyConstituents = errors.New("empty constituent list")

	ErrInvalidQualityFlag = errors.New("invalid quality flag")
	ErrInvalidIssueType   = errors.New("invalid issue type")
	ErrInvalidDate        = errors.New("invalid date")

	// ErrRunAborted indicates that the operator cancelled an update run.
	ErrRunAborted = errors.New("update run aborted")
)

// Operation failure errors used by the HTTP layer.
var (
	ErrFailedToRetrieveAssets     = errors.New("failed to retrieve assets")
	ErrFailedToRetrieveAsset      = errors.New("failed to retrieve asset")
	ErrFailedToRetrievePrices     = errors.New("failed to retrieve prices")
	ErrFailedToRetrieveIndicators = errors.New("failed to retrieve indicators")
	ErrFailedToRetrieveIndex      = errors.New("failed to retrieve index members")
	ErrFailedToRetrieveRuns       = errors.New("failed to retrieve update runs")
	ErrFailedToRetrieveQuality    = errors.New("failed to retrieve quality log")
	ErrFailedToGetVersionInfo     = errors.New("failed to get version information")
)

// TransientFetchError reports that fetching a symbol kept failing after all retries.
// It fails that symbol only.
type TransientFetchError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ProviderExhaustedError reports a rate-limit or ban signal from the provider.
// Remaining fetches of the run must not be attempted.
type ProviderExhaustedError struct {
	Symbol     string
	StatusCode int
	RetryAfter time.Duration
}

func (e *ProviderExhaustedError) Error() string {
	msg := fmt.Sprintf("provider refused request for %s with status %d", e.Symbol, e.StatusCode)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// DataIntegrityError reports a bar that violates the OHLC/volume invariant.
type DataIntegrityError struct {
	Symbol string
	Date   time.Time
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("invalid bar %s %s: %s", e.Symbol, e.Date.Format("2006-01-02"), e.Reason)
}

// StorageError wraps a failed write to the store. The enclosing transaction was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConcurrentRunError reports that another live process holds the run lock.
type ConcurrentRunError struct {
	PID      int
	LockPath string
}

func (e *ConcurrentRunError) Error() string {
	return fmt.Sprintf("update already running (pid %d, lock %s)", e.PID, e.LockPath)
}

// Storage wraps err as a *StorageError unless it already is one or is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsFatal reports whether err must abort the whole update run.
func IsFatal(err error) bool {
	var pe *ProviderExhaustedError
	var se *StorageError
	return errors.As(err, &pe) || errors.As(err, &se) || errors.Is(err, ErrRunAborted)
}

// JoinSymbols renders failed symbols for update_log.error_message.
func JoinSymbols(failures map[string]error, order []string) string {
	parts := make([]string, 0, len(order))
	for _, sym := range order {
		if err, ok := failures[sym]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", sym, err))
		}
	}
	return strings.Join(parts, "; ")
}
