package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// usageStore implements driven.APIUsageStore. Rows are never updated.
type usageStore struct {
	store *Store
}

var _ driven.APIUsageStore = (*usageStore)(nil)

// Append inserts one usage entry.
func (s *usageStore) Append(ctx context.Context, entry *domain.APIUsageLogEntry) error {
	if entry == nil || entry.ID == "" || entry.Date == "" {
		return domain.ErrInvalidInput
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO api_usage_log (id, usage_date, survey_code, requests_used, series_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Date, nullString(entry.SurveyCode), entry.RequestsUsed, entry.SeriesCount,
		formatNullableTime(createdAt))
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("appending api usage: %w", err)
	}
	return nil
}

// SumByDate totals requests used on date.
func (s *usageStore) SumByDate(ctx context.Context, date string) (int, error) {
	var total int
	row := s.store.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(requests_used), 0) FROM api_usage_log WHERE usage_date = ?
	`, date)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("summing api usage: %w", err)
	}
	return total, nil
}

// ListByDate returns date's entries in insertion order.
func (s *usageStore) ListByDate(ctx context.Context, date string) ([]domain.APIUsageLogEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, usage_date, survey_code, requests_used, series_count, created_at
		FROM api_usage_log
		WHERE usage_date = ?
		ORDER BY created_at, rowid
	`, date)
	if err != nil {
		return nil, fmt.Errorf("querying api usage: %w", err)
	}
	defer rows.Close()

	var entries []domain.APIUsageLogEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.APIUsageLogEntry
		var survey, createdAt sql.NullString
		if err := rows.Scan(&e.ID, &e.Date, &survey, &e.RequestsUsed, &e.SeriesCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning api usage: %w", err)
		}
		e.SurveyCode = survey.String
		e.CreatedAt = parseNullableTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api usage: %w", err)
	}
	return entries, nil
}
