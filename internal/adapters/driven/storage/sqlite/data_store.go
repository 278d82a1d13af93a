package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// dataStore implements driven.DataStore for local, single-file warehouses.
type dataStore struct {
	store *Store
}

var _ driven.DataStore = (*dataStore)(nil)

// UpsertObservations writes a batch in one transaction, keyed by
// (series, year, period).
func (s *dataStore) UpsertObservations(ctx context.Context, _ string, obs []domain.Observation) (int, error) {
	for i := range obs {
		if obs[i].SeriesID == "" {
			return 0, domain.ErrInvalidInput
		}
	}
	now := formatNullableTime(time.Now())

	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO observations (series_id, year, period, value, footnotes, is_latest, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(series_id, year, period) DO UPDATE SET
				value = excluded.value,
				footnotes = excluded.footnotes,
				is_latest = excluded.is_latest,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("preparing observation upsert: %w", err)
		}
		defer stmt.Close()

		for _, o := range obs {
			if _, err := stmt.ExecContext(ctx, o.SeriesID, o.Year, o.Period, o.Value,
				nullString(o.Footnotes), boolToInt(o.Latest), now); err != nil {
				return fmt.Errorf("upserting observation %s %s: %w", o.SeriesID, o.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(obs), nil
}

// ActiveSeriesIDs returns the survey's active series in id order.
func (s *dataStore) ActiveSeriesIDs(ctx context.Context, surveyCode string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT series_id FROM series WHERE survey_code = ? AND is_active = 1 ORDER BY series_id
	`, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("querying active series: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning series id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active series: %w", err)
	}
	return ids, nil
}

// LatestObservations returns the newest stored observation per series.
func (s *dataStore) LatestObservations(ctx context.Context, seriesIDs []string) (map[string]domain.Observation, error) {
	out := make(map[string]domain.Observation, len(seriesIDs))
	for _, ids := range chunkIDs(seriesIDs) {
		rows, err := s.store.db.QueryContext(ctx, `
			SELECT o.series_id, o.year, o.period, o.value, o.footnotes, o.is_latest, o.updated_at
			FROM observations o
			WHERE o.series_id IN (`+placeholders(len(ids))+`)
			  AND NOT EXISTS (
				SELECT 1 FROM observations n
				WHERE n.series_id = o.series_id
				  AND (n.year > o.year OR (n.year = o.year AND n.period > o.period))
			  )
		`, toArgs(ids)...)
		if err != nil {
			return nil, fmt.Errorf("querying latest observations: %w", err)
		}
		if err := scanObservations(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanObservations(rows *sql.Rows, out map[string]domain.Observation) error {
	defer rows.Close()
	for rows.Next() {
		var o domain.Observation
		var footnotes, updatedAt sql.NullString
		var latest int
		if err := rows.Scan(&o.SeriesID, &o.Year, &o.Period, &o.Value, &footnotes, &latest, &updatedAt); err != nil {
			return fmt.Errorf("scanning observation: %w", err)
		}
		o.Footnotes = footnotes.String
		o.Latest = latest == 1
		o.UpdatedAt = parseNullableTime(updatedAt)
		out[o.SeriesID] = o
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating observations: %w", err)
	}
	return nil
}

// SaveSeries upserts catalog entries.
func (s *dataStore) SaveSeries(ctx context.Context, series []domain.Series) error {
	for i := range series {
		if series[i].ID == "" || series[i].SurveyCode == "" {
			return domain.ErrInvalidInput
		}
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO series (series_id, survey_code, title, is_active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(series_id) DO UPDATE SET
				survey_code = excluded.survey_code,
				title = excluded.title,
				is_active = excluded.is_active
		`)
		if err != nil {
			return fmt.Errorf("preparing series upsert: %w", err)
		}
		defer stmt.Close()

		for _, sr := range series {
			if _, err := stmt.ExecContext(ctx, sr.ID, sr.SurveyCode, nullString(sr.Title), boolToInt(sr.Active)); err != nil {
				return fmt.Errorf("upserting series %s: %w", sr.ID, err)
			}
		}
		return nil
	})
}

// DeactivateSeries marks the listed series of the survey inactive.
func (s *dataStore) DeactivateSeries(ctx context.Context, surveyCode string, seriesIDs []string) (int, error) {
	total := 0
	for _, ids := range chunkIDs(seriesIDs) {
		res, err := s.store.db.ExecContext(ctx, `
			UPDATE series SET is_active = 0
			WHERE survey_code = ? AND is_active = 1 AND series_id IN (`+placeholders(len(ids))+`)
		`, toArgs(ids, surveyCode)...)
		if err != nil {
			return total, fmt.Errorf("deactivating series: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("reading rows affected: %w", err)
		}
		total += int(n)
	}
	return total, nil
}
