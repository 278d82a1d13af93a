package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

const (
	// DefaultSchema is used when Config.Schema is empty.
	DefaultSchema = "bls"

	// DefaultBatchSize is the number of statements per pgx batch.
	DefaultBatchSize = 500

	defaultMaxConns = 4
)

// Config configures the warehouse connection.
type Config struct {
	DSN       string
	Schema    string
	MaxConns  int
	BatchSize int

	// SimpleProtocol disables prepared statements, for pgbouncer in
	// transaction pooling mode.
	SimpleProtocol bool
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Store is a DataStore backed by PostgreSQL.
type Store struct {
	pool      pool
	schema    string
	batchSize int
	now       func() time.Time
}

var _ driven.DataStore = (*Store)(nil)

// Open connects to the warehouse and creates the schema if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: warehouse dsn is empty", domain.ErrInvalidInput)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing warehouse dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	pcfg.MaxConns = int32(maxConns) //nolint:gosec // small configured value
	if cfg.SimpleProtocol {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pinging warehouse: %w", err)
	}

	s := newStore(p, cfg.Schema, cfg.BatchSize)
	if err := s.ensureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

func newStore(p pool, schema string, batchSize int) *Store {
	if schema == "" {
		schema = DefaultSchema
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{pool: p, schema: schema, batchSize: batchSize, now: time.Now}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// table returns the quoted, schema-qualified table name.
func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + s.table("series") + ` (
			series_id   TEXT PRIMARY KEY,
			survey_code TEXT NOT NULL,
			title       TEXT,
			is_active   BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS series_survey_active_idx ON ` + s.table("series") + ` (survey_code, is_active)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("observations") + ` (
			series_id  TEXT NOT NULL,
			year       INTEGER NOT NULL,
			period     TEXT NOT NULL,
			value      DOUBLE PRECISION NOT NULL,
			footnotes  TEXT,
			is_latest  BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (series_id, year, period)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating warehouse schema: %w", err)
		}
	}
	return nil
}

// sendBatch executes b and returns the summed rows affected.
func sendBatch(ctx context.Context, p pool, b *pgx.Batch) (int, error) {
	br := p.SendBatch(ctx, b)
	total := 0
	for k := 0; k < b.Len(); k++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return total, err
		}
		total += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return total, err
	}
	return total, nil
}
