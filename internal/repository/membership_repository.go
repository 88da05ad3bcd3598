package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/market-data-store/internal/model"
)

// MembershipRepository provides data access methods for the index_memberships table.
type MembershipRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewMembershipRepository creates a new MembershipRepository with the provided database connection.
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// WithTx returns a new MembershipRepository scoped to the provided transaction.
func (r *MembershipRepository) WithTx(tx *sql.Tx) *MembershipRepository {
	return &MembershipRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *MembershipRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// GetMembers returns the memberships of one index ordered by symbol.
// With activeOnly false, former constituents are included.
func (r *MembershipRepository) GetMembers(ctx context.Context, indexName string, activeOnly bool) ([]model.IndexMembership, error) {
	query := `
		SELECT symbol, index_name, added_date, is_active
		FROM index_memberships
		WHERE index_name = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY symbol ASC`
	return r.queryMemberships(ctx, query, indexName)
}

// GetIndices returns the active memberships of one symbol ordered by index name.
func (r *MembershipRepository) GetIndices(ctx context.Context, symbol string) ([]model.IndexMembership, error) {
	query := `
		SELECT symbol, index_name, added_date, is_active
		FROM index_memberships
		WHERE symbol = ? AND is_active = 1
		ORDER BY index_name ASC`
	return r.queryMemberships(ctx, query, symbol)
}

func (r *MembershipRepository) queryMemberships(ctx context.Context, query string, args ...any) ([]model.IndexMembership, error) {
	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index_memberships: %w", err)
	}
	defer rows.Close()

	members := []model.IndexMembership{}
	for rows.Next() {
		var (
			m     model.IndexMembership
			added string
		)
		if err := rows.Scan(&m.Symbol, &m.IndexName, &added, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan index_memberships results: %w", err)
		}
		if m.AddedDate, err = ParseTime(added); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index_memberships: %w", err)
	}
	return members, nil
}

// Activate creates the membership or reactivates a former one. The original
// added_date of a returning constituent is kept.
func (r *MembershipRepository) Activate(ctx context.Context, symbol, indexName string, now time.Time) error {
	query := `
		INSERT INTO index_memberships (symbol, index_name, added_date, is_active, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(symbol, index_name) DO UPDATE SET
			is_active = 1,
			updated_at = excluded.updated_at`

	if _, err := r.getQuerier().ExecContext(ctx, query, symbol, indexName, formatDate(now), formatTimestamp(now)); err != nil {
		return fmt.Errorf("failed to activate index membership %s in %s: %w", symbol, indexName, err)
	}
	return nil
}

// Deactivate marks a membership as former.
func (r *MembershipRepository) Deactivate(ctx context.Context, symbol, indexName string, now time.Time) error {
	query := `
		UPDATE index_memberships
		SET is_active = 0, updated_at = ?
		WHERE symbol = ? AND index_name = ?`

	if _, err := r.getQuerier().ExecContext(ctx, query, formatTimestamp(now), symbol, indexName); err != nil {
		return fmt.Errorf("failed to deactivate index membership %s in %s: %w", symbol, indexName, err)
	}
	return nil
}

// CountActive returns the number of indices a symbol currently belongs to.
func (r *MembershipRepository) CountActive(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.getQuerier().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_memberships WHERE symbol = ? AND is_active = 1`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count index_memberships: %w", err)
	}
	return n, nil
}
