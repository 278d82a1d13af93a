// Package sqlite provides the local SQLite implementation of the collector's
// driven store ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database file backs every store:
//
//   - UpdateCycleStore: update cycles, at most one active per survey
//   - APIUsageStore: append-only daily request ledger
//   - SeriesStatusStore: per-series freshness state
//   - SentinelStore and FreshnessStore: change detection state
//   - DataStore: series catalog and observations
//   - SchedulerStore: scheduled tasks and their results
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files
// and is applied in its own transaction.
//
// Timestamps are stored as fixed-width UTC strings so they sort lexically.
//
// # Data Location
//
// By default, the database is stored at ~/.finexus/data/collector.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode; cycle claims are single conditional UPDATEs.
package sqlite
