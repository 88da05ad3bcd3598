package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
)

// UpdateRepository provides data access methods for the append-only update_log table.
type UpdateRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewUpdateRepository creates a new UpdateRepository with the provided database connection.
func NewUpdateRepository(db *sql.DB) *UpdateRepository {
	return &UpdateRepository{db: db}
}

// WithTx returns a new UpdateRepository scoped to the provided transaction.
func (r *UpdateRepository) WithTx(tx *sql.Tx) *UpdateRepository {
	return &UpdateRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *UpdateRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertRun appends one run summary and returns its id.
func (r *UpdateRepository) InsertRun(ctx context.Context, run model.UpdateRun) (int64, error) {
	query := `
		INSERT INTO update_log (
			update_type, symbols_updated, records_inserted, records_updated,
			duration_seconds, status, error_message, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.getQuerier().ExecContext(ctx, query,
		run.UpdateType,
		run.SymbolsUpdated,
		run.RecordsInserted,
		run.RecordsUpdated,
		run.DurationSeconds,
		string(run.Status),
		nullableString(run.ErrorMessage),
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.CompletedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert update_log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read update_log id: %w", err)
	}
	return id, nil
}

const runColumns = `
	id, update_type, symbols_updated, records_inserted, records_updated,
	duration_seconds, status, error_message, started_at, completed_at`

// GetRuns retrieves the most recent runs, newest first. limit <= 0 means no limit.
func (r *UpdateRepository) GetRuns(ctx context.Context, limit int) ([]model.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_log ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query update_log: %w", err)
	}
	defer rows.Close()

	runs := []model.UpdateRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update_log: %w", err)
	}
	return runs, nil
}

// GetLatestRun returns the newest run with the given status, or any status when empty.
// Returns apperrors.ErrUpdateRunNotFound when no row matches.
func (r *UpdateRepository) GetLatestRun(ctx context.Context, status model.RunStatus) (model.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_log`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC LIMIT 1`

	run, err := scanRun(r.getQuerier().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.UpdateRun{}, apperrors.ErrUpdateRunNotFound
	}
	return run, err
}

// CountRuns returns the number of update_log rows.
func (r *UpdateRepository) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := r.getQuerier().QueryRowContext(ctx, `SELECT COUNT(*) FROM update_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count update_log: %w", err)
	}
	return n, nil
}

func scanRun(row rowScanner) (model.UpdateRun, error) {
	var (
		run                      model.UpdateRun
		duration                 sql.NullFloat64
		status, errMsg           sql.NullString
		startedStr, completedStr sql.NullString
	)
	err := row.Scan(
		&run.ID, &run.UpdateType, &run.SymbolsUpdated, &run.RecordsInserted, &run.RecordsUpdated,
		&duration, &status, &errMsg, &startedStr, &completedStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UpdateRun{}, err
	}
	if err != nil {
		return model.UpdateRun{}, fmt.Errorf("failed to scan update_log results: %w", err)
	}
	run.DurationSeconds = duration.Float64
	run.Status = model.RunStatus(status.String)
	run.ErrorMessage = errMsg.String
	if run.StartedAt, err = parseNullTime(startedStr); err != nil {
		return model.UpdateRun{}, err
	}
	if run.CompletedAt, err = parseNullTime(completedStr); err != nil {
		return model.UpdateRun{}, err
	}
	return run, nil
}
