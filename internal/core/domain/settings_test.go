package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultAppSettings(t *testing.T) {
	s := DefaultAppSettings()

	assert.Equal(t, 500, s.Quota.DailyLimit)
	assert.Equal(t, "America/New_York", s.Quota.Timezone)
	assert.Equal(t, DefaultFreshnessWindow, s.Sync.FreshnessWindow)
	assert.Equal(t, DefaultSentinelsPerSurvey, s.Sync.SentinelsPerSurvey)
	assert.Equal(t, 1, s.Sync.Parallel)
	assert.InDelta(t, 2.0, s.API.RequestsPerSecond, 1e-9)
	assert.False(t, s.API.IsRegistered())
	assert.Empty(t, s.Storage.WarehouseDSN)
}

func TestAPISettings_IsRegistered(t *testing.T) {
	assert.True(t, APISettings{Key: "abc"}.IsRegistered())
	assert.False(t, APISettings{}.IsRegistered())
}
