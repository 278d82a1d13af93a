// Package driven lists what the collector's core needs from the outside world.
//
// Storage:
//
//   - DataStore: series catalog and observation warehouse (sqlite or postgres)
//   - UpdateCycleStore: cycles, claimed with a compare-and-set on the running flag
//   - APIUsageStore: append-only request log behind the quota ledger
//   - SeriesStatusStore: which series are already current
//   - SentinelStore, FreshnessStore: sentinel sample and per-survey freshness
//   - SchedulerStore: task state and run history
//   - ConfigStore: dot-notation settings
//
// Upstream and tooling:
//
//   - TimeSeriesAPI: batched observation fetches; the only port that blocks on
//     the network
//   - SeriesCatalogReader: parses catalogue files for series import
//   - Metrics: run counters; services accept nil and record nothing
//
// Ports reference domain types only, never adapters.
package driven
