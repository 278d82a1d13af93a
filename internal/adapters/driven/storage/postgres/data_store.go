package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// UpsertObservations writes obs in batches of idempotent upserts.
func (s *Store) UpsertObservations(ctx context.Context, _ string, obs []domain.Observation) (int, error) {
	for i := range obs {
		if obs[i].SeriesID == "" {
			return 0, domain.ErrInvalidInput
		}
	}
	if len(obs) == 0 {
		return 0, nil
	}

	query := `INSERT INTO ` + s.table("observations") + `
		(series_id, year, period, value, footnotes, is_latest, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (series_id, year, period) DO UPDATE SET
			value = EXCLUDED.value,
			footnotes = EXCLUDED.footnotes,
			is_latest = EXCLUDED.is_latest,
			updated_at = EXCLUDED.updated_at`

	now := s.now().UTC()
	written := 0
	for _, part := range batches(len(obs), s.batchSize) {
		b := &pgx.Batch{}
		for _, o := range obs[part.start:part.end] {
			b.Queue(query, o.SeriesID, o.Year, o.Period, o.Value, nullableText(o.Footnotes), o.Latest, now)
		}
		if _, err := sendBatch(ctx, s.pool, b); err != nil {
			return written, fmt.Errorf("upserting observations: %w", err)
		}
		written += part.end - part.start
	}
	return written, nil
}

// ActiveSeriesIDs returns the survey's active series in id order.
func (s *Store) ActiveSeriesIDs(ctx context.Context, surveyCode string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT series_id FROM `+s.table("series")+`
		WHERE survey_code = $1 AND is_active
		ORDER BY series_id`, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("querying active series: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning active series: %w", err)
	}
	return ids, nil
}

// LatestObservations returns the newest stored observation per series.
func (s *Store) LatestObservations(ctx context.Context, seriesIDs []string) (map[string]domain.Observation, error) {
	out := make(map[string]domain.Observation, len(seriesIDs))
	if len(seriesIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (series_id)
			series_id, year, period, value, COALESCE(footnotes, ''), is_latest, updated_at
		FROM `+s.table("observations")+`
		WHERE series_id = ANY($1)
		ORDER BY series_id, year DESC, period DESC`, seriesIDs)
	if err != nil {
		return nil, fmt.Errorf("querying latest observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.SeriesID, &o.Year, &o.Period, &o.Value, &o.Footnotes, &o.Latest, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		out[o.SeriesID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating observations: %w", err)
	}
	return out, nil
}

// SaveSeries upserts catalog entries.
func (s *Store) SaveSeries(ctx context.Context, series []domain.Series) error {
	for i := range series {
		if series[i].ID == "" || series[i].SurveyCode == "" {
			return domain.ErrInvalidInput
		}
	}

	query := `INSERT INTO ` + s.table("series") + ` (series_id, survey_code, title, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (series_id) DO UPDATE SET
			survey_code = EXCLUDED.survey_code,
			title = EXCLUDED.title,
			is_active = EXCLUDED.is_active`

	for _, part := range batches(len(series), s.batchSize) {
		b := &pgx.Batch{}
		for _, sr := range series[part.start:part.end] {
			b.Queue(query, sr.ID, sr.SurveyCode, nullableText(sr.Title), sr.Active)
		}
		if _, err := sendBatch(ctx, s.pool, b); err != nil {
			return fmt.Errorf("upserting series: %w", err)
		}
	}
	return nil
}

// DeactivateSeries marks the listed series of the survey inactive.
func (s *Store) DeactivateSeries(ctx context.Context, surveyCode string, seriesIDs []string) (int, error) {
	if len(seriesIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table("series")+` SET is_active = FALSE
		WHERE survey_code = $1 AND is_active AND series_id = ANY($2)`, surveyCode, seriesIDs)
	if err != nil {
		return 0, fmt.Errorf("deactivating series: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type span struct{ start, end int }

// batches splits n items into consecutive spans of at most size.
func batches(n, size int) []span {
	if size <= 0 {
		size = n
	}
	var out []span
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{start, end})
	}
	return out
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
