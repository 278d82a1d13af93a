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

// cycleStore implements driven.UpdateCycleStore. The partial unique index
// on update_cycles enforces one active cycle per survey; TryStart is a
// single conditional UPDATE so concurrent starters cannot both win, and it
// also takes over a running cycle whose heartbeat predates staleBefore.
type cycleStore struct {
	store *Store
}

var _ driven.UpdateCycleStore = (*cycleStore)(nil)

const cycleColumns = `id, survey_code, total_series, series_updated, is_complete, is_running,
	is_force, created_at, started_at, completed_at, superseded_at, heartbeat_at`

// stale matches a running cycle whose last sign of life predates the bound
// parameter. A NULL bound never matches.
const staleRun = `COALESCE(heartbeat_at, started_at) < ?`

// Active returns the survey's active cycle, or nil if there is none.
func (s *cycleStore) Active(ctx context.Context, surveyCode string) (*domain.UpdateCycle, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+cycleColumns+`
		FROM update_cycles
		WHERE survey_code = ? AND is_complete = 0 AND superseded_at IS NULL
		LIMIT 1
	`, surveyCode)

	cycle, err := scanCycle(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return cycle, err
}

// Get retrieves a cycle by ID.
func (s *cycleStore) Get(ctx context.Context, id string) (*domain.UpdateCycle, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+cycleColumns+` FROM update_cycles WHERE id = ?
	`, id)
	return scanCycle(row)
}

// List returns the survey's cycles, newest first.
func (s *cycleStore) List(ctx context.Context, surveyCode string, limit int) ([]domain.UpdateCycle, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+cycleColumns+`
		FROM update_cycles
		WHERE survey_code = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, surveyCode, limit)
	if err != nil {
		return nil, fmt.Errorf("querying update cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.UpdateCycle //nolint:prealloc // size unknown from query
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update cycles: %w", err)
	}
	return cycles, nil
}

// Create inserts a new cycle.
func (s *cycleStore) Create(ctx context.Context, cycle *domain.UpdateCycle) error {
	if cycle == nil || cycle.ID == "" || cycle.SurveyCode == "" {
		return domain.ErrInvalidInput
	}
	createdAt := cycle.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO update_cycles (`+cycleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cycle.ID, cycle.SurveyCode, cycle.TotalSeries, cycle.SeriesUpdated,
		boolToInt(cycle.IsComplete), boolToInt(cycle.IsRunning), boolToInt(cycle.Force),
		formatNullableTime(createdAt), formatNullableTime(cycle.StartedAt),
		formatNullableTime(cycle.CompletedAt), formatNullableTime(cycle.SupersededAt),
		formatNullableTime(cycle.HeartbeatAt))
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("creating update cycle: %w", err)
	}
	return nil
}

// Supersede retires an active cycle that is idle or whose run went stale.
func (s *cycleStore) Supersede(ctx context.Context, id string, at, staleBefore time.Time) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE update_cycles SET superseded_at = ?, is_running = 0
		WHERE id = ? AND is_complete = 0 AND superseded_at IS NULL
		  AND (is_running = 0 OR `+staleRun+`)
	`, formatNullableTime(at), id, formatNullableTime(staleBefore))
	if err != nil {
		return false, fmt.Errorf("superseding update cycle: %w", err)
	}
	return s.applied(ctx, res, id)
}

// TryStart marks an active cycle as running if it is idle or its run went
// stale.
func (s *cycleStore) TryStart(ctx context.Context, id string, at, staleBefore time.Time) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE update_cycles SET is_running = 1, started_at = ?, heartbeat_at = ?
		WHERE id = ? AND is_complete = 0 AND superseded_at IS NULL
		  AND (is_running = 0 OR `+staleRun+`)
	`, formatNullableTime(at), formatNullableTime(at), id, formatNullableTime(staleBefore))
	if err != nil {
		return false, fmt.Errorf("starting update cycle: %w", err)
	}
	return s.applied(ctx, res, id)
}

// SaveProgress records the cycle's series counts and refreshes its heartbeat.
func (s *cycleStore) SaveProgress(ctx context.Context, id string, totalSeries, seriesUpdated int, at time.Time) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE update_cycles SET total_series = ?, series_updated = ?, heartbeat_at = ? WHERE id = ?
	`, totalSeries, seriesUpdated, formatNullableTime(at), id)
	if err != nil {
		return fmt.Errorf("saving cycle progress: %w", err)
	}
	return requireRow(res)
}

// Finish clears the running flag and, if complete, closes the cycle.
func (s *cycleStore) Finish(ctx context.Context, id string, complete bool, at time.Time) error {
	var res sql.Result
	var err error
	if complete {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE update_cycles SET is_running = 0, is_complete = 1, completed_at = ? WHERE id = ?
		`, formatNullableTime(at), id)
	} else {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE update_cycles SET is_running = 0 WHERE id = ?
		`, id)
	}
	if err != nil {
		return fmt.Errorf("finishing update cycle: %w", err)
	}
	return requireRow(res)
}

// applied reports whether a conditional update hit its row, distinguishing
// "condition not met" from a missing cycle.
func (s *cycleStore) applied(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// requireRow maps an update that matched nothing to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCycle(row rowScanner) (*domain.UpdateCycle, error) {
	var c domain.UpdateCycle
	var complete, running, force int
	var createdAt, startedAt, completedAt, supersededAt, heartbeatAt sql.NullString

	if err := row.Scan(&c.ID, &c.SurveyCode, &c.TotalSeries, &c.SeriesUpdated,
		&complete, &running, &force, &createdAt, &startedAt, &completedAt, &supersededAt, &heartbeatAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning update cycle: %w", err)
	}

	c.IsComplete = complete == 1
	c.IsRunning = running == 1
	c.Force = force == 1
	c.CreatedAt = parseNullableTime(createdAt)
	c.StartedAt = parseNullableTime(startedAt)
	c.CompletedAt = parseNullableTime(completedAt)
	c.SupersededAt = parseNullableTime(supersededAt)
	c.HeartbeatAt = parseNullableTime(heartbeatAt)
	return &c, nil
}
