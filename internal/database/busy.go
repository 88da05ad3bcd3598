package database

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
)

const sqliteBusy = 5

// IsBusy reports whether err is an SQLITE_BUSY (or extended busy) result.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqliteBusy
	}
	return false
}

// RetryBusy runs a read-only query function, retrying it while the writer holds the lock.
func RetryBusy(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(5, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if IsBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
