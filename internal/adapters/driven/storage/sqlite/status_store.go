package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// statusStore implements driven.SeriesStatusStore.
type statusStore struct {
	store *Store
}

var _ driven.SeriesStatusStore = (*statusStore)(nil)

// ListBySurvey returns the survey's status rows keyed by series id.
func (s *statusStore) ListBySurvey(ctx context.Context, surveyCode string) (map[string]domain.SeriesUpdateStatus, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT series_id, survey_code, last_checked_at, last_updated_at, is_current, last_year, last_period
		FROM series_update_status
		WHERE survey_code = ?
	`, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("querying series status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.SeriesUpdateStatus)
	for rows.Next() {
		var st domain.SeriesUpdateStatus
		var checked, updated sql.NullString
		var current int
		if err := rows.Scan(&st.SeriesID, &st.SurveyCode, &checked, &updated, &current,
			&st.LastObserved.Year, &st.LastObserved.Period); err != nil {
			return nil, fmt.Errorf("scanning series status: %w", err)
		}
		st.LastCheckedAt = parseNullableTime(checked)
		st.LastUpdatedAt = parseNullableTime(updated)
		st.IsCurrent = current == 1
		out[st.SeriesID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating series status: %w", err)
	}
	return out, nil
}

// Upsert writes status rows in one transaction.
func (s *statusStore) Upsert(ctx context.Context, statuses []domain.SeriesUpdateStatus) error {
	for i := range statuses {
		if statuses[i].SeriesID == "" {
			return domain.ErrInvalidInput
		}
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO series_update_status
				(series_id, survey_code, last_checked_at, last_updated_at, is_current, last_year, last_period)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(series_id) DO UPDATE SET
				survey_code = excluded.survey_code,
				last_checked_at = excluded.last_checked_at,
				last_updated_at = excluded.last_updated_at,
				is_current = excluded.is_current,
				last_year = excluded.last_year,
				last_period = excluded.last_period
		`)
		if err != nil {
			return fmt.Errorf("preparing status upsert: %w", err)
		}
		defer stmt.Close()

		for _, st := range statuses {
			if _, err := stmt.ExecContext(ctx, st.SeriesID, st.SurveyCode,
				formatNullableTime(st.LastCheckedAt), formatNullableTime(st.LastUpdatedAt),
				boolToInt(st.IsCurrent), st.LastObserved.Year, st.LastObserved.Period); err != nil {
				return fmt.Errorf("upserting status %s: %w", st.SeriesID, err)
			}
		}
		return nil
	})
}

// ResetSurvey clears is_current for the survey and returns how many rows changed.
func (s *statusStore) ResetSurvey(ctx context.Context, surveyCode string) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE series_update_status SET is_current = 0 WHERE survey_code = ? AND is_current = 1
	`, surveyCode)
	if err != nil {
		return 0, fmt.Errorf("resetting series status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}
