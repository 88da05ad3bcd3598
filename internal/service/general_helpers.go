package service

import (
	"context"

	"github.com/ndewijer/market-data-store/internal/database"
)

// readRetry runs a read that may collide with the update writer, retrying while
// SQLite reports SQLITE_BUSY.
//
// Parameters:
//   - ctx: Context bounding all attempts
//   - fn: The read; it is called again only for busy errors
//
// Returns the result of the first attempt that is not busy.
func readRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := database.RetryBusy(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
