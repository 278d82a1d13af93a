// Command collector keeps local copies of survey time series up to date
// within a shared daily API quota.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/blsapi"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/catalog"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/config/file"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/storage/postgres"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/storage/sqlite"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driving/cli"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/services"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/metrics"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Log rotation limits for log.file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
)

func main() {
	os.Exit(run())
}

//nolint:gocyclo // Linear wiring of adapters into services
func run() int {
	ctx := context.Background()

	dotenv := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		dotenv = append(dotenv, filepath.Join(home, ".finexus", ".env"))
	}
	if err := file.LoadDotEnv(dotenv...); err != nil {
		logger.Warn("ignoring .env: %v", err)
	}

	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fail("loading config: %v", err)
	}
	for _, key := range configStore.ApplyEnv(nil) {
		logger.Debug("config %s set from environment", key)
	}

	registry := domain.DefaultSurveyRegistry()
	settingsService := services.NewSettingsService(configStore, &registry)
	settings, err := settingsService.Get()
	if err != nil {
		return fail("reading settings: %v", err)
	}

	if settings.LogFile != "" {
		if err := logger.SetFile(settings.LogFile, logMaxSizeMB, logMaxBackups); err != nil {
			return fail("opening log file: %v", err)
		}
	}
	defer func() { _ = logger.Close() }()

	store, err := sqlite.NewStore(settings.Storage.DataDir)
	if err != nil {
		return fail("opening state store: %v", err)
	}
	defer func() { _ = store.Close() }()

	var data driven.DataStore = store.DataStore()
	if settings.Storage.WarehouseDSN != "" {
		warehouse, err := postgres.Open(ctx, postgres.Config{
			DSN:    settings.Storage.WarehouseDSN,
			Schema: settings.Storage.WarehouseSchema,
		})
		if err != nil {
			return fail("connecting to warehouse: %v", err)
		}
		defer warehouse.Close()
		data = warehouse
		logger.Debug("observations stored in postgres schema %s", settings.Storage.WarehouseSchema)
	}

	recorder := metrics.New()
	client := blsapi.NewClient(blsapi.Config{
		APIKey:            settings.API.Key,
		BaseURL:           settings.API.BaseURL,
		RequestsPerSecond: settings.API.RequestsPerSecond,
		MaxRetries:        settings.API.MaxRetries,
		Metrics:           recorder,
	})
	if !settings.API.IsRegistered() {
		logger.Warn("no API key set (BLS_API_KEY); using unregistered request limits")
	}

	ledger := services.NewQuotaLedger(store.APIUsageStore(), services.LoadReportingZone(settings.Quota.Timezone))
	tracker := services.NewSeriesTracker(data, store.SeriesStatusStore(), settings.Sync.FreshnessWindow)
	cycles := services.NewCycleManager(&registry, client, data, store.UpdateCycleStore(),
		store.FreshnessStore(), tracker, ledger, recorder)
	cycles.SetRequestShape(client.Limits())
	checker := services.NewFreshnessChecker(&registry, client, data, store.SentinelStore(),
		store.FreshnessStore(), ledger, recorder)
	seriesLimit, _ := client.Limits()
	checker.SetLimits(settings.Quota.DailyLimit, seriesLimit)
	importer := services.NewCatalogService(&registry, catalog.NewReader(), data)
	scheduler := services.NewScheduler(settingsService.GetSchedulerConfig(), store.SchedulerStore(),
		&registry, checker, cycles, tracker, domain.SyncPlan{
			DailyLimit: settings.Quota.DailyLimit,
			Parallel:   settings.Sync.Parallel,
		})

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Cycles:    cycles,
		Freshness: checker,
		Quota:     ledger,
		Tracker:   tracker,
		Catalog:   importer,
		Scheduler: scheduler,
		Settings:  settingsService,
		Registry:  &registry,
		AfterRun: func() error {
			if settings.MetricsTextfile == "" {
				return nil
			}
			if remaining, err := ledger.Remaining(ctx, ledger.Today(), settings.Quota.DailyLimit); err == nil {
				recorder.QuotaRemaining(remaining)
			}
			return recorder.WriteTextfile(settings.MetricsTextfile)
		},
	})

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func fail(format string, args ...any) int {
	logger.Error(format, args...)
	return 1
}
