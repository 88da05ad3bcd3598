package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// timestampLayout matches SQLite's CURRENT_TIMESTAMP so stored timestamps sort as text.
const timestampLayout = "2006-01-02 15:04:05"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ParseTime parses a date string in "2006-01-02", SQLite timestamp or RFC3339 format.
// The driver returns DATE and TIMESTAMP columns as RFC3339 text when scanned into
// strings, while aggregates such as MAX(date) come back in storage format.
func ParseTime(str string) (time.Time, error) {
	for _, layout := range []string{model.DateLayout, timestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse date: %q", str)
}

// parseNullTime returns the zero time for NULL.
func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return ParseTime(ns.String)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(model.DateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// nullableDate stores the zero time as NULL.
func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatDate(t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
