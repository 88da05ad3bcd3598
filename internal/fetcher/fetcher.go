package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/yahoo"
)

// ChartSource is the provider contract the fetcher consumes.
type ChartSource interface {
	QuerySymbolByDateRange(ctx context.Context, symbol string, from, to time.Time) (yahoo.PriceChart, error)
}

// Options configures retry behaviour.
type Options struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Fetcher retrieves raw daily bars through a shared throttle, retrying transient
// provider failures with capped exponential backoff.
type Fetcher struct {
	source   ChartSource
	throttle *Throttle
	opts     Options
	logger   *slog.Logger
}

// New creates a Fetcher. The throttle must be shared by all fetchers of a run.
func New(source ChartSource, throttle *Throttle, opts Options, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:   source,
		throttle: throttle,
		opts:     opts,
		logger:   logger,
	}
}

// Fetch returns the raw bars for symbol in [from, to].
// An empty slice with a nil error means the provider has no data in range.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]model.RawBar, error) {
	chart, err := f.FetchChart(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	return chart.Bars, nil
}

// FetchChart is Fetch with the provider's instrument metadata.
//
// Errors:
//   - *apperrors.ProviderExhaustedError on HTTP 429/403, never retried
//   - *apperrors.TransientFetchError when every attempt failed transiently
//   - the context error when ctx ends
//   - any other provider error unchanged, after a single attempt
func (f *Fetcher) FetchChart(ctx context.Context, symbol string, from, to time.Time) (yahoo.PriceChart, error) {
	backoff := retry.NewExponential(f.opts.BackoffBase)
	backoff = retry.WithCappedDuration(f.opts.BackoffMax, backoff)
	backoff = retry.WithMaxRetries(uint64(f.opts.MaxRetries), backoff)

	attempts := 0
	retrying := false
	chart, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (yahoo.PriceChart, error) {
		if err := f.throttle.Wait(ctx); err != nil {
			return yahoo.PriceChart{}, err
		}
		attempts++
		retrying = false

		chart, err := f.source.QuerySymbolByDateRange(ctx, symbol, from, to)
		if err == nil {
			return chart, nil
		}
		if ctx.Err() != nil {
			return yahoo.PriceChart{}, ctx.Err()
		}

		var se *yahoo.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusForbidden) {
			return yahoo.PriceChart{}, &apperrors.ProviderExhaustedError{
				Symbol:     symbol,
				StatusCode: se.StatusCode,
				RetryAfter: se.RetryAfter,
			}
		}
		if !isTransient(err) {
			return yahoo.PriceChart{}, fmt.Errorf("failed to fetch %s: %w", symbol, err)
		}

		f.logger.Warn("transient fetch failure",
			"symbol", symbol,
			"attempt", attempts,
			"error", err)
		retrying = true
		return yahoo.PriceChart{}, retry.RetryableError(err)
	})
	if err == nil {
		return chart, nil
	}
	if ctx.Err() != nil {
		return yahoo.PriceChart{}, ctx.Err()
	}
	if retrying {
		return yahoo.PriceChart{}, &apperrors.TransientFetchError{Symbol: symbol, Attempts: attempts, Err: err}
	}
	return yahoo.PriceChart{}, err
}

// isTransient reports whether a provider error is worth retrying:
// timeouts, network failures, 5xx responses and malformed payloads.
func isTransient(err error) bool {
	var se *yahoo.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var de *yahoo.DecodeError
	if errors.As(err, &de) {
		return true
	}
	var ce *yahoo.ChartError
	if errors.As(err, &ce) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
