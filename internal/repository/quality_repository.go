package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/market-data-store/internal/model"
)

// QualityRepository provides data access methods for the append-only data_quality_log table.
type QualityRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewQualityRepository creates a new QualityRepository with the provided database connection.
func NewQualityRepository(db *sql.DB) *QualityRepository {
	return &QualityRepository{db: db}
}

// WithTx returns a new QualityRepository scoped to the provided transaction.
func (r *QualityRepository) WithTx(tx *sql.Tx) *QualityRepository {
	return &QualityRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *QualityRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertAnomalies appends anomaly records. Records are never deduplicated.
func (r *QualityRepository) InsertAnomalies(ctx context.Context, anomalies []model.QualityAnomaly) error {
	query := `
		INSERT INTO data_quality_log (symbol, date, issue_type, severity, description, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	q := r.getQuerier()
	for _, a := range anomalies {
		if !model.ValidIssueTypes[a.IssueType] {
			return fmt.Errorf("failed to insert data_quality_log: invalid issue type %q", a.IssueType)
		}
		if _, err := q.ExecContext(ctx, query,
			a.Symbol,
			formatDate(a.Date),
			string(a.IssueType),
			string(a.Severity),
			a.Description,
			formatTimestamp(a.DetectedAt),
		); err != nil {
			return fmt.Errorf("failed to insert data_quality_log %s %s: %w", a.Symbol, a.DateKey(), err)
		}
	}
	return nil
}

// GetAnomalies retrieves anomalies newest first.
//
// Parameters:
//   - ctx: Context for cancellation
//   - filters: Optional symbol and issue type; Limit <= 0 means no limit
func (r *QualityRepository) GetAnomalies(ctx context.Context, filters model.QualityFilters) ([]model.QualityAnomaly, error) {
	query := `
		SELECT id, symbol, date, issue_type, severity, description, detected_at
		FROM data_quality_log
		WHERE 1 = 1`
	var args []any

	if filters.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, filters.Symbol)
	}
	if filters.IssueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, string(filters.IssueType))
	}
	query += ` ORDER BY id DESC`
	if filters.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filters.Limit)
	}

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data_quality_log: %w", err)
	}
	defer rows.Close()

	anomalies := []model.QualityAnomaly{}
	for rows.Next() {
		var (
			a                               model.QualityAnomaly
			dateStr                         string
			issue, severity, desc, detected sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &dateStr, &issue, &severity, &desc, &detected); err != nil {
			return nil, fmt.Errorf("failed to scan data_quality_log results: %w", err)
		}
		if a.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		if a.DetectedAt, err = parseNullTime(detected); err != nil {
			return nil, err
		}
		a.IssueType = model.IssueType(issue.String)
		a.Severity = model.Severity(severity.String)
		a.Description = desc.String
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data_quality_log: %w", err)
	}
	return anomalies, nil
}
