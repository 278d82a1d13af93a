package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyAPIKey            = "api.key"
	KeyAPIBaseURL        = "api.base_url"
	KeyAPIRequestsPerSec = "api.requests_per_second"
	KeyAPIMaxRetries     = "api.max_retries"
	KeyQuotaDailyLimit   = "quota.daily_limit"
	KeyQuotaTimezone     = "quota.timezone"
	KeyFreshnessWindow   = "sync.freshness_window_hours"
	KeySyncParallel      = "sync.parallel"
	KeySyncSurveys       = "sync.surveys"
	KeySentinelsPer      = "sentinels.per_survey"
	KeyDataDir           = "storage.data_dir"
	KeyWarehouseDSN      = "warehouse.dsn"
	KeyWarehouseSchema   = "warehouse.schema"
	KeyLogFile           = "log.file"
	KeyMetricsTextfile   = "metrics.textfile"
	KeySchedulerEnabled  = "scheduler.enabled"
)

// SettingsService manages collector settings.
type SettingsService struct {
	configStore driven.ConfigStore
	registry    *domain.SurveyRegistry
}

// NewSettingsService creates a new settings service. The registry validates
// configured survey lists and may be nil.
func NewSettingsService(configStore driven.ConfigStore, registry *domain.SurveyRegistry) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		registry:    registry,
	}
}

// Get retrieves current settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		API: domain.APISettings{
			Key:               s.configStore.GetString(KeyAPIKey),
			BaseURL:           s.configStore.GetString(KeyAPIBaseURL),
			RequestsPerSecond: s.getFloat(KeyAPIRequestsPerSec, defaults.API.RequestsPerSecond),
			MaxRetries:        s.getInt(KeyAPIMaxRetries, defaults.API.MaxRetries),
		},
		Quota: domain.QuotaSettings{
			DailyLimit: s.getInt(KeyQuotaDailyLimit, defaults.Quota.DailyLimit),
			Timezone:   s.getString(KeyQuotaTimezone, defaults.Quota.Timezone),
		},
		Sync: domain.SyncSettings{
			FreshnessWindow:    s.getHours(KeyFreshnessWindow, defaults.Sync.FreshnessWindow),
			SentinelsPerSurvey: s.getInt(KeySentinelsPer, defaults.Sync.SentinelsPerSurvey),
			Parallel:           s.getInt(KeySyncParallel, defaults.Sync.Parallel),
			Surveys:            s.configStore.GetStringSlice(KeySyncSurveys),
		},
		Storage: domain.StorageSettings{
			DataDir:         s.configStore.GetString(KeyDataDir),
			WarehouseDSN:    s.configStore.GetString(KeyWarehouseDSN),
			WarehouseSchema: s.getString(KeyWarehouseSchema, defaults.Storage.WarehouseSchema),
		},
		LogFile:         s.configStore.GetString(KeyLogFile),
		MetricsTextfile: s.configStore.GetString(KeyMetricsTextfile),
	}

	return settings, nil
}

// Set stores one value.
func (s *SettingsService) Set(key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty config key", domain.ErrInvalidInput)
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if settings.Quota.DailyLimit <= 0 {
		return fmt.Errorf("%w: quota.daily_limit must be positive", domain.ErrInvalidInput)
	}
	if settings.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: api.requests_per_second must be positive", domain.ErrInvalidInput)
	}
	if settings.Sync.Parallel < 1 {
		return fmt.Errorf("%w: sync.parallel must be at least 1", domain.ErrInvalidInput)
	}
	if _, err := time.LoadLocation(settings.Quota.Timezone); err != nil {
		return fmt.Errorf("%w: quota.timezone: %w", domain.ErrInvalidInput, err)
	}
	if s.registry != nil && len(settings.Sync.Surveys) > 0 {
		if _, err := s.registry.Validate(settings.Sync.Surveys); err != nil {
			return fmt.Errorf("sync.surveys: %w", err)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

// getHours reads a whole or fractional number of hours.
func (s *SettingsService) getHours(key string, defaultVal time.Duration) time.Duration {
	hours := s.configStore.GetFloat(key)
	if hours <= 0 {
		return defaultVal
	}
	return time.Duration(hours * float64(time.Hour))
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	// Master switch
	defaults.Enabled = s.getBool(KeySchedulerEnabled, defaults.Enabled)
	defaults.Surveys = s.configStore.GetStringSlice(KeySyncSurveys)

	// Per-task config, keyed by the short TOML name of each task.
	taskKeys := map[string]string{
		domain.TaskIDFreshnessCheck: "freshness",
		domain.TaskIDSurveySync:     "sync",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "_"

		taskCfg := defaults.TaskConfigs[taskID]
		taskCfg.Enabled = s.getBool(prefix+"enabled", taskCfg.Enabled)

		// Interval is a duration string like "45m" or "24h".
		if interval := s.configStore.GetString(prefix + "interval"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil && d > 0 {
				taskCfg.Interval = d
			}
		}

		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}
