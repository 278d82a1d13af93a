// Package cli provides the collector's command-line interface.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// ErrAllFailed is returned when every requested survey failed.
var ErrAllFailed = errors.New("every survey failed")

// Services wired by main.
var (
	cycleManager     driving.CycleManager
	freshnessChecker driving.FreshnessChecker
	quotaLedger      driving.QuotaLedger
	seriesTracker    driving.SeriesTracker
	catalogImporter  driving.CatalogImporter
	scheduler        driving.Scheduler
	settingsService  driving.SettingsService
	surveyRegistry   *domain.SurveyRegistry

	// afterRun is called once a command has finished, e.g. to flush metrics.
	afterRun func() error
)

// Services bundles the ports the commands drive.
type Services struct {
	Cycles    driving.CycleManager
	Freshness driving.FreshnessChecker
	Quota     driving.QuotaLedger
	Tracker   driving.SeriesTracker
	Catalog   driving.CatalogImporter
	Scheduler driving.Scheduler
	Settings  driving.SettingsService
	Registry  *domain.SurveyRegistry
	AfterRun  func() error
}

// SetServices installs the services used by all commands.
func SetServices(s Services) {
	cycleManager = s.Cycles
	freshnessChecker = s.Freshness
	quotaLedger = s.Quota
	seriesTracker = s.Tracker
	catalogImporter = s.Catalog
	scheduler = s.Scheduler
	settingsService = s.Settings
	surveyRegistry = s.Registry
	afterRun = s.AfterRun
}

// SetVersion sets the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Synchronise survey time series within a daily API quota",
	Long: `collector keeps a local copy of government statistical survey time series
up to date. It fetches series in quota-aware batches, resumes interrupted
update cycles, and detects upstream releases with sentinel series.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command, then the after-run hook even when the
// command failed.
func Execute() error {
	err := rootCmd.Execute()
	if afterRun != nil {
		if hookErr := afterRun(); hookErr != nil {
			err = errors.Join(err, hookErr)
		}
	}
	return err
}

// currentSettings returns configured settings, or defaults when no settings
// service is wired.
func currentSettings() domain.AppSettings {
	if settingsService != nil {
		if s, err := settingsService.Get(); err == nil && s != nil {
			return *s
		}
	}
	return domain.DefaultAppSettings()
}

// resolveSurveys returns args, or the configured survey list with --all.
func resolveSurveys(args []string, all bool) ([]string, error) {
	if len(args) > 0 {
		if all {
			return nil, errors.New("pass survey codes or --all, not both")
		}
		return args, nil
	}
	if !all {
		return nil, errors.New("no surveys given (pass survey codes or --all)")
	}
	if configured := currentSettings().Sync.Surveys; len(configured) > 0 {
		return configured, nil
	}
	if surveyRegistry == nil {
		return nil, errors.New("survey registry not configured")
	}
	return surveyRegistry.Codes(), nil
}
