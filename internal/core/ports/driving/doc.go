// Package driving holds the ports the CLI and the scheduler call into:
// CycleManager runs survey updates, FreshnessChecker checks sentinels,
// QuotaLedger reports API usage, SeriesTracker and CatalogImporter manage the
// series catalogue, and SettingsService edits configuration.
//
// The services package implements every one of them.
package driving
