package driving

import "github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"

// SettingsService reads and writes collector configuration.
type SettingsService interface {
	// Get retrieves current settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// Set stores one configuration value by dot-notation key.
	Set(key string, value any) error

	// Validate checks the current settings.
	Validate() error

	// GetSchedulerConfig returns the scheduler configuration.
	GetSchedulerConfig() domain.SchedulerConfig

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
