package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage collector settings",
	Long: `View and change collector settings stored in ~/.finexus/config.toml.

Environment variables (BLS_API_KEY, COLLECTOR_DATA_DIR, COLLECTOR_PG_DSN,
COLLECTOR_LOG_FILE) override the file for the current run only.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a setting by dot-notation key",
	Long: `Set a setting by dot-notation key, for example:

  collector settings set quota.daily_limit 500
  collector settings set sync.surveys CU,LA,CE
  collector settings set scheduler.sync_interval 2h`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsAPIKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Store the API registration key",
	Long:  `Prompt for the API registration key without echoing it and store it.`,
	Args:  cobra.NoArgs,
	RunE:  runSettingsAPIKey,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsAPIKeyCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(headingStyle.Render("Current Settings"))
	cmd.Println()

	cmd.Println("[API]")
	if settings.API.IsRegistered() {
		cmd.Printf("  Key: %s\n", maskAPIKey(settings.API.Key))
	} else {
		cmd.Println("  Key: (not set, unregistered limits apply)")
	}
	if settings.API.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.API.BaseURL)
	}
	cmd.Printf("  Requests/second: %g\n", settings.API.RequestsPerSecond)
	cmd.Printf("  Max retries: %d\n", settings.API.MaxRetries)
	cmd.Println()

	cmd.Println("[Quota]")
	cmd.Printf("  Daily limit: %d\n", settings.Quota.DailyLimit)
	cmd.Printf("  Timezone: %s\n", settings.Quota.Timezone)
	cmd.Println()

	cmd.Println("[Sync]")
	cmd.Printf("  Freshness window: %s\n", settings.Sync.FreshnessWindow)
	cmd.Printf("  Sentinels per survey: %d\n", settings.Sync.SentinelsPerSurvey)
	cmd.Printf("  Parallel surveys: %d\n", settings.Sync.Parallel)
	if len(settings.Sync.Surveys) > 0 {
		cmd.Printf("  Surveys: %s\n", strings.Join(settings.Sync.Surveys, ", "))
	} else {
		cmd.Println("  Surveys: (all registered)")
	}
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Data dir: %s\n", orDefault(settings.Storage.DataDir, "~/.finexus/data"))
	if settings.Storage.WarehouseDSN != "" {
		cmd.Printf("  Warehouse: postgres (schema %s)\n", settings.Storage.WarehouseSchema)
	} else {
		cmd.Println("  Warehouse: (none)")
	}
	cmd.Println()

	cmd.Println("[Output]")
	cmd.Printf("  Log file: %s\n", orDefault(settings.LogFile, "(stderr only)"))
	cmd.Printf("  Metrics textfile: %s\n", orDefault(settings.MetricsTextfile, "(disabled)"))

	if err := settingsService.Validate(); err != nil {
		cmd.Println()
		cmd.Println(warnStyle.Render("Invalid: " + err.Error()))
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	key := strings.TrimSpace(args[0])
	value, err := parseSettingValue(key, args[1])
	if err != nil {
		return err
	}
	if err := settingsService.Set(key, value); err != nil {
		return err
	}
	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("saved %s, but settings are now invalid: %w", key, err)
	}
	cmd.Printf("Set %s\n", key)
	return nil
}

func runSettingsAPIKey(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	cmd.Print("API key: ")
	key := readPassword(cmd)
	cmd.Println()
	if key == "" {
		return errors.New("no key entered")
	}
	if err := settingsService.Set("api.key", key); err != nil {
		return err
	}
	cmd.Printf("Stored API key %s\n", maskAPIKey(key))
	return nil
}

// Typed settings; everything else is stored as a string.
var (
	intSettings = map[string]bool{
		"api.max_retries":             true,
		"quota.daily_limit":           true,
		"sync.freshness_window_hours": true,
		"sync.parallel":               true,
		"sentinels.per_survey":        true,
	}
	floatSettings = map[string]bool{
		"api.requests_per_second": true,
	}
)

func parseSettingValue(key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case intSettings[key]:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	case floatSettings[key]:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return f, nil
	case key == "scheduler.enabled" || strings.HasSuffix(key, "_enabled"):
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false: %w", key, err)
		}
		return b, nil
	case key == "sync.surveys":
		var codes []string
		for _, c := range strings.Split(raw, ",") {
			if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
				codes = append(codes, c)
			}
		}
		return codes, nil
	default:
		return raw, nil
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func readPassword(cmd *cobra.Command) string {
	// Read without echo when attached to a terminal.
	if stdinIsTerminal() {
		password, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // Fd fits in int
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	input, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
