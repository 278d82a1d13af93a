package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/storage/memory"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/services"
)

func setupSettingsTest(t *testing.T, values map[string]any) (*memory.ConfigStore, func()) {
	t.Helper()
	store := memory.NewConfigStoreWith(values)
	registry := testRegistry()
	cleanup := setupCLITest(Services{
		Settings: services.NewSettingsService(store, registry),
		Registry: registry,
	})
	return store, cleanup
}

func TestSettingsShowCmd(t *testing.T) {
	_, cleanup := setupSettingsTest(t, map[string]any{
		"api.key":       "0123456789abcdef",
		"sync.surveys":  []string{"CU", "LA"},
		"warehouse.dsn": "postgres://localhost/finexus",
	})
	defer cleanup()

	out, err := execute(t, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "Key: 0123...cdef")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "Daily limit: 500")
	assert.Contains(t, out, "Timezone: America/New_York")
	assert.Contains(t, out, "Surveys: CU, LA")
	assert.Contains(t, out, "Warehouse: postgres (schema bls)")
	assert.Contains(t, out, "Metrics textfile: (disabled)")
	assert.NotContains(t, out, "Invalid:")
}

func TestSettingsShowCmd_Unregistered(t *testing.T) {
	_, cleanup := setupSettingsTest(t, map[string]any{"quota.timezone": "Mars/Olympus"})
	defer cleanup()

	out, err := execute(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "not set, unregistered limits apply")
	assert.Contains(t, out, "Invalid:")
}

func TestSettingsSetCmd(t *testing.T) {
	store, cleanup := setupSettingsTest(t, nil)
	defer cleanup()

	tests := []struct {
		key, value string
		want       any
	}{
		{"quota.daily_limit", "250", 250},
		{"api.requests_per_second", "0.5", 0.5},
		{"scheduler.enabled", "false", false},
		{"scheduler.sync_enabled", "true", true},
		{"sync.surveys", "cu, la ,", []string{"CU", "LA"}},
		{"scheduler.sync_interval", "2h", "2h"},
		{"api.key", "12345678", "12345678"},
	}
	for _, tt := range tests {
		out, err := execute(t, "settings", "set", tt.key, tt.value)
		require.NoError(t, err, tt.key)
		assert.Contains(t, out, "Set "+tt.key)

		got, ok := store.Get(tt.key)
		require.True(t, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}

func TestSettingsSetCmd_Errors(t *testing.T) {
	_, cleanup := setupSettingsTest(t, nil)
	defer cleanup()

	_, err := execute(t, "settings", "set", "quota.daily_limit", "lots")
	assert.ErrorContains(t, err, "must be an integer")

	_, err = execute(t, "settings", "set", "scheduler.enabled", "maybe")
	assert.ErrorContains(t, err, "must be true or false")

	_, err = execute(t, "settings", "set", "sync.surveys", "CU,ZZ")
	assert.ErrorContains(t, err, "settings are now invalid")

	_, err = execute(t, "settings", "set", "quota.daily_limit")
	assert.Error(t, err)
}

func TestSettingsAPIKeyCmd(t *testing.T) {
	store, cleanup := setupSettingsTest(t, nil)
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("abcd1234efgh5678\n"))
	out, err := execute(t, "settings", "api-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored API key abcd...5678")
	assert.Equal(t, "abcd1234efgh5678", store.GetString("api.key"))

	rootCmd.SetIn(strings.NewReader("\n"))
	_, err = execute(t, "settings", "api-key")
	assert.EqualError(t, err, "no key entered")
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcd...wxyz", maskAPIKey("abcdefghijklmnopqrstuvwxyz"))
}

func TestResolveSurveys_ConfiguredList(t *testing.T) {
	_, cleanup := setupSettingsTest(t, map[string]any{"sync.surveys": []string{"LA"}})
	defer cleanup()

	codes, err := resolveSurveys(nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"LA"}, codes)
}
