package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// ==================== Sentinel Store ====================

// sentinelStore implements driven.SentinelStore.
type sentinelStore struct {
	store *Store
}

var _ driven.SentinelStore = (*sentinelStore)(nil)

// ReplaceSentinels swaps the survey's whole sample in one transaction.
func (s *sentinelStore) ReplaceSentinels(ctx context.Context, surveyCode string, sentinels []domain.SurveySentinel) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM survey_sentinels WHERE survey_code = ?", surveyCode); err != nil {
			return fmt.Errorf("clearing sentinels: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO survey_sentinels
				(survey_code, series_id, position, last_year, last_period, last_value, has_changed,
				 check_count, change_count, last_checked_at, last_changed_at, selected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing sentinel insert: %w", err)
		}
		defer stmt.Close()

		for _, sn := range sentinels {
			if _, err := stmt.ExecContext(ctx, surveyCode, sn.SeriesID, sn.Position,
				sn.LastSeen.Year, sn.LastSeen.Period, sn.LastValue, boolToInt(sn.HasChanged),
				sn.CheckCount, sn.ChangeCount, formatNullableTime(sn.LastCheckedAt),
				formatNullableTime(sn.LastChangedAt), formatNullableTime(sn.SelectedAt)); err != nil {
				return fmt.Errorf("inserting sentinel %s: %w", sn.SeriesID, err)
			}
		}
		return nil
	})
}

// ListSentinels returns the survey's sample ordered by position.
func (s *sentinelStore) ListSentinels(ctx context.Context, surveyCode string) ([]domain.SurveySentinel, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT survey_code, series_id, position, last_year, last_period, last_value, has_changed,
		       check_count, change_count, last_checked_at, last_changed_at, selected_at
		FROM survey_sentinels
		WHERE survey_code = ?
		ORDER BY position
	`, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("querying sentinels: %w", err)
	}
	defer rows.Close()

	var out []domain.SurveySentinel //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sn domain.SurveySentinel
		var changed int
		var checkedAt, changedAt, selectedAt sql.NullString
		if err := rows.Scan(&sn.SurveyCode, &sn.SeriesID, &sn.Position, &sn.LastSeen.Year,
			&sn.LastSeen.Period, &sn.LastValue, &changed, &sn.CheckCount, &sn.ChangeCount,
			&checkedAt, &changedAt, &selectedAt); err != nil {
			return nil, fmt.Errorf("scanning sentinel: %w", err)
		}
		sn.HasChanged = changed == 1
		sn.LastCheckedAt = parseNullableTime(checkedAt)
		sn.LastChangedAt = parseNullableTime(changedAt)
		sn.SelectedAt = parseNullableTime(selectedAt)
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sentinels: %w", err)
	}
	return out, nil
}

// SaveSentinels updates check state of existing sentinels.
func (s *sentinelStore) SaveSentinels(ctx context.Context, sentinels []domain.SurveySentinel) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, sn := range sentinels {
			res, err := tx.ExecContext(ctx, `
				UPDATE survey_sentinels SET
					last_year = ?, last_period = ?, last_value = ?, has_changed = ?,
					check_count = ?, change_count = ?, last_checked_at = ?, last_changed_at = ?
				WHERE survey_code = ? AND series_id = ?
			`, sn.LastSeen.Year, sn.LastSeen.Period, sn.LastValue, boolToInt(sn.HasChanged),
				sn.CheckCount, sn.ChangeCount, formatNullableTime(sn.LastCheckedAt),
				formatNullableTime(sn.LastChangedAt), sn.SurveyCode, sn.SeriesID)
			if err != nil {
				return fmt.Errorf("saving sentinel %s: %w", sn.SeriesID, err)
			}
			if err := requireRow(res); err != nil {
				return err
			}
		}
		return nil
	})
}

// ==================== Freshness Store ====================

// freshnessStore implements driven.FreshnessStore.
type freshnessStore struct {
	store *Store
}

var _ driven.FreshnessStore = (*freshnessStore)(nil)

const freshnessColumns = `survey_code, last_detected_change, last_checked_at, last_full_update_at,
	needs_full_update, full_update_in_progress, series_total_count, series_updated_count,
	sentinels_total, sentinels_changed, update_frequency_days, check_count, detect_count,
	upstream_year, upstream_period, stored_year, stored_period`

// GetFreshness returns the survey's aggregate, or ErrNotFound.
func (s *freshnessStore) GetFreshness(ctx context.Context, surveyCode string) (*domain.SurveyFreshness, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+freshnessColumns+` FROM survey_freshness WHERE survey_code = ?
	`, surveyCode)
	return scanFreshness(row)
}

// ListFreshness returns every aggregate ordered by survey code.
func (s *freshnessStore) ListFreshness(ctx context.Context) ([]domain.SurveyFreshness, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+freshnessColumns+` FROM survey_freshness ORDER BY survey_code
	`)
	if err != nil {
		return nil, fmt.Errorf("querying freshness: %w", err)
	}
	defer rows.Close()

	var out []domain.SurveyFreshness //nolint:prealloc // size unknown from query
	for rows.Next() {
		f, err := scanFreshness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating freshness: %w", err)
	}
	return out, nil
}

// SaveCheck writes the change-detection fields, leaving progress untouched.
func (s *freshnessStore) SaveCheck(ctx context.Context, f *domain.SurveyFreshness) error {
	if f == nil || f.SurveyCode == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO survey_freshness
			(survey_code, last_detected_change, last_checked_at, needs_full_update,
			 sentinels_total, sentinels_changed, update_frequency_days, check_count, detect_count,
			 upstream_year, upstream_period, stored_year, stored_period)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(survey_code) DO UPDATE SET
			last_detected_change = excluded.last_detected_change,
			last_checked_at = excluded.last_checked_at,
			needs_full_update = excluded.needs_full_update,
			sentinels_total = excluded.sentinels_total,
			sentinels_changed = excluded.sentinels_changed,
			update_frequency_days = excluded.update_frequency_days,
			check_count = excluded.check_count,
			detect_count = excluded.detect_count,
			upstream_year = excluded.upstream_year,
			upstream_period = excluded.upstream_period,
			stored_year = excluded.stored_year,
			stored_period = excluded.stored_period
	`, f.SurveyCode, formatNullableTime(f.LastDetectedChange), formatNullableTime(f.LastCheckedAt),
		boolToInt(f.NeedsFullUpdate), f.SentinelsTotal, f.SentinelsChanged, f.UpdateFrequencyDays,
		f.CheckCount, f.DetectCount, f.LatestUpstream.Year, f.LatestUpstream.Period,
		f.LatestStored.Year, f.LatestStored.Period)
	if err != nil {
		return fmt.Errorf("saving freshness check: %w", err)
	}
	return nil
}

// SaveProgress mirrors cycle progress. A non-zero completedAt also clears
// the needs-update flag.
func (s *freshnessStore) SaveProgress(ctx context.Context, surveyCode string, inProgress bool, total, updated int, completedAt time.Time) error {
	if surveyCode == "" {
		return domain.ErrInvalidInput
	}
	var err error
	if completedAt.IsZero() {
		_, err = s.store.db.ExecContext(ctx, `
			INSERT INTO survey_freshness (survey_code, full_update_in_progress, series_total_count, series_updated_count)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(survey_code) DO UPDATE SET
				full_update_in_progress = excluded.full_update_in_progress,
				series_total_count = excluded.series_total_count,
				series_updated_count = excluded.series_updated_count
		`, surveyCode, boolToInt(inProgress), total, updated)
	} else {
		_, err = s.store.db.ExecContext(ctx, `
			INSERT INTO survey_freshness
				(survey_code, full_update_in_progress, series_total_count, series_updated_count,
				 needs_full_update, last_full_update_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(survey_code) DO UPDATE SET
				full_update_in_progress = excluded.full_update_in_progress,
				series_total_count = excluded.series_total_count,
				series_updated_count = excluded.series_updated_count,
				needs_full_update = 0,
				last_full_update_at = excluded.last_full_update_at
		`, surveyCode, boolToInt(inProgress), total, updated, formatNullableTime(completedAt))
	}
	if err != nil {
		return fmt.Errorf("saving freshness progress: %w", err)
	}
	return nil
}

func scanFreshness(row rowScanner) (*domain.SurveyFreshness, error) {
	var f domain.SurveyFreshness
	var detected, checked, fullUpdate sql.NullString
	var needs, inProgress int

	if err := row.Scan(&f.SurveyCode, &detected, &checked, &fullUpdate, &needs, &inProgress,
		&f.SeriesTotalCount, &f.SeriesUpdatedCount, &f.SentinelsTotal, &f.SentinelsChanged,
		&f.UpdateFrequencyDays, &f.CheckCount, &f.DetectCount,
		&f.LatestUpstream.Year, &f.LatestUpstream.Period,
		&f.LatestStored.Year, &f.LatestStored.Period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning freshness: %w", err)
	}

	f.LastDetectedChange = parseNullableTime(detected)
	f.LastCheckedAt = parseNullableTime(checked)
	f.LastFullUpdateAt = parseNullableTime(fullUpdate)
	f.NeedsFullUpdate = needs == 1
	f.FullUpdateInProgress = inProgress == 1
	return &f, nil
}
