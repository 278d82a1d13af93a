// Package postgres provides a PostgreSQL observation warehouse implementing
// driven.DataStore.
//
// It is optional: the engine's own state (cycles, quota, statuses, sentinels)
// always lives in the local SQLite store, while series and observations can
// be written to a shared warehouse when warehouse.dsn is configured.
//
// Writes are sent as pgx batches of idempotent upserts keyed by
// (series_id, year, period).
package postgres
