package domain

import "time"

// APISettings configures the upstream time-series API client.
type APISettings struct {
	// Key is the registration key. Empty selects the unregistered request shape.
	Key string

	// BaseURL overrides the default endpoint.
	BaseURL string

	// RequestsPerSecond paces outgoing calls.
	RequestsPerSecond float64

	MaxRetries int
}

// IsRegistered reports whether a registration key is configured.
func (a APISettings) IsRegistered() bool {
	return a.Key != ""
}

// QuotaSettings configures the daily request quota.
type QuotaSettings struct {
	DailyLimit int

	// Timezone names the zone in which the daily quota resets.
	Timezone string
}

// SyncSettings holds sync defaults.
type SyncSettings struct {
	// FreshnessWindow is how long a checked series counts as current.
	FreshnessWindow time.Duration

	SentinelsPerSurvey int

	// Parallel is the number of surveys synchronised concurrently.
	Parallel int

	// Surveys is the default survey list for scheduled and --all runs.
	// Empty means every registered survey.
	Surveys []string
}

// StorageSettings locates persistent state.
type StorageSettings struct {
	// DataDir holds the local state database.
	DataDir string

	// WarehouseDSN, when set, sends series and observations to PostgreSQL.
	WarehouseDSN string

	WarehouseSchema string
}

// AppSettings is the collector configuration.
type AppSettings struct {
	API     APISettings
	Quota   QuotaSettings
	Sync    SyncSettings
	Storage StorageSettings

	// LogFile, when set, receives a rotating copy of log output.
	LogFile string

	// MetricsTextfile, when set, receives a metrics snapshot after each run.
	MetricsTextfile string
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		API: APISettings{
			RequestsPerSecond: 2,
			MaxRetries:        3,
		},
		Quota: QuotaSettings{
			DailyLimit: 500,
			Timezone:   "America/New_York",
		},
		Sync: SyncSettings{
			FreshnessWindow:    DefaultFreshnessWindow,
			SentinelsPerSurvey: DefaultSentinelsPerSurvey,
			Parallel:           1,
		},
		Storage: StorageSettings{
			WarehouseSchema: "bls",
		},
	}
}
