package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// ==================== Fake pool ====================

type fakeBatchResults struct {
	n    int
	err  error
	done int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.done++
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (r *fakeBatchResults) Close() error             { return nil }

// fakePool records batches and statements.
type fakePool struct {
	batches  []*pgx.Batch
	execs    []string
	execArgs [][]any
	batchErr error
	closed   bool
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.NewCommandTag("UPDATE 2"), nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	p.batches = append(p.batches, b)
	return &fakeBatchResults{n: b.Len(), err: p.batchErr}
}

func (p *fakePool) Close() { p.closed = true }

// ==================== Unit tests ====================

func TestNewStore_Defaults(t *testing.T) {
	s := newStore(&fakePool{}, "", 0)
	assert.Equal(t, DefaultSchema, s.schema)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
	assert.Equal(t, `"bls"."observations"`, s.table("observations"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{DSN: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing warehouse dsn")
}

func TestStore_EnsureSchema(t *testing.T) {
	p := &fakePool{}
	s := newStore(p, "warehouse", 10)
	require.NoError(t, s.ensureSchema(context.Background()))

	require.Len(t, p.execs, 4)
	assert.Contains(t, p.execs[0], `CREATE SCHEMA IF NOT EXISTS "warehouse"`)
	assert.Contains(t, p.execs[3], `"warehouse"."observations"`)
}

func TestStore_UpsertObservations_Batches(t *testing.T) {
	p := &fakePool{}
	s := newStore(p, "", 2)

	obs := []domain.Observation{
		{SeriesID: "CU1", Year: 2026, Period: "M01", Value: 1, Footnotes: "P"},
		{SeriesID: "CU1", Year: 2026, Period: "M02", Value: 2},
		{SeriesID: "CU2", Year: 2026, Period: "M01", Value: 3, Latest: true},
	}
	n, err := s.UpsertObservations(context.Background(), "CU", obs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, p.batches, 2)
	assert.Equal(t, 2, p.batches[0].Len())
	assert.Equal(t, 1, p.batches[1].Len())

	first := p.batches[0].QueuedQueries[0]
	assert.True(t, strings.Contains(first.SQL, "ON CONFLICT (series_id, year, period)"))
	require.Len(t, first.Arguments, 7)
	assert.Equal(t, "CU1", first.Arguments[0])
	assert.Equal(t, "P", *first.Arguments[4].(*string))
	assert.Nil(t, p.batches[0].QueuedQueries[1].Arguments[4].(*string))
	assert.Equal(t, true, p.batches[1].QueuedQueries[0].Arguments[5])
}

func TestStore_UpsertObservations_Errors(t *testing.T) {
	p := &fakePool{batchErr: errors.New("connection reset")}
	s := newStore(p, "", 10)

	_, err := s.UpsertObservations(context.Background(), "CU", []domain.Observation{{Year: 2026}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, p.batches, "validation happens before any write")

	_, err = s.UpsertObservations(context.Background(), "CU", []domain.Observation{{SeriesID: "CU1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	n, err := s.UpsertObservations(context.Background(), "CU", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_SaveSeries(t *testing.T) {
	p := &fakePool{}
	s := newStore(p, "", 10)

	require.NoError(t, s.SaveSeries(context.Background(), []domain.Series{
		{ID: "CU1", SurveyCode: "CU", Title: "All items", Active: true},
		{ID: "CU2", SurveyCode: "CU"},
	}))
	require.Len(t, p.batches, 1)
	assert.Equal(t, 2, p.batches[0].Len())

	assert.ErrorIs(t, s.SaveSeries(context.Background(), []domain.Series{{ID: "X"}}), domain.ErrInvalidInput)
}

func TestStore_DeactivateSeries(t *testing.T) {
	p := &fakePool{}
	s := newStore(p, "", 10)

	n, err := s.DeactivateSeries(context.Background(), "CU", []string{"CU1", "CU2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, p.execArgs, 1)
	assert.Equal(t, "CU", p.execArgs[0][0])
	assert.Equal(t, []string{"CU1", "CU2"}, p.execArgs[0][1])

	n, err = s.DeactivateSeries(context.Background(), "CU", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, p.execs, 1)
}

func TestBatches(t *testing.T) {
	assert.Nil(t, batches(0, 5))
	assert.Equal(t, []span{{0, 5}, {5, 10}, {10, 12}}, batches(12, 5))
	assert.Equal(t, []span{{0, 3}}, batches(3, 0))
}

// ==================== Integration ====================

// openTestStore connects to COLLECTOR_TEST_PG_DSN in a throwaway schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COLLECTOR_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("COLLECTOR_TEST_PG_DSN not set")
	}
	schema := "collector_test_" + strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))
	s, err := Open(context.Background(), Config{DSN: dsn, Schema: schema, BatchSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		s.Close()
	})
	return s
}

func TestIntegration_DataStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSeries(ctx, []domain.Series{
		{ID: "CU2", SurveyCode: "CU", Active: true},
		{ID: "CU1", SurveyCode: "CU", Active: true},
		{ID: "LA1", SurveyCode: "LA", Active: true},
	}))
	ids, err := s.ActiveSeriesIDs(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, []string{"CU1", "CU2"}, ids)

	_, err = s.UpsertObservations(ctx, "CU", []domain.Observation{
		{SeriesID: "CU1", Year: 2025, Period: "M12", Value: 1},
		{SeriesID: "CU1", Year: 2026, Period: "M01", Value: 2},
		{SeriesID: "CU1", Year: 2026, Period: "M01", Value: 2.5},
	})
	require.NoError(t, err)

	latest, err := s.LatestObservations(ctx, []string{"CU1", "CU2"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.Period{Year: 2026, Period: "M01"}, latest["CU1"].Key())
	assert.InDelta(t, 2.5, latest["CU1"].Value, 1e-9)

	n, err := s.DeactivateSeries(ctx, "CU", []string{"CU2", "LA1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
