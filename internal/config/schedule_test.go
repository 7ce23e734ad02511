package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule("Asia/Tashkent")
	assert.Len(t, s, 7)
	assert.Equal(t, "1 0 * * *", s[TriggerApplyPenalties].Cron)
	for _, name := range s.Names() {
		assert.True(t, s[name].Enabled, name)
		assert.Equal(t, "Asia/Tashkent", s[name].Timezone, name)
	}
}

func TestLoadSchedule_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remind-tonight:
  cron: "30 20 * * *"
post-statistics:
  enabled: false
enforce-removal:
  timezone: UTC
`), 0o600))

	s, err := LoadSchedule(path, "Asia/Tashkent")
	require.NoError(t, err)

	assert.Equal(t, "30 20 * * *", s[TriggerRemindTonight].Cron)
	assert.True(t, s[TriggerRemindTonight].Enabled)
	assert.False(t, s[TriggerPostStatistics].Enabled)
	assert.Equal(t, "5 6 * * *", s[TriggerPostStatistics].Cron)
	assert.Equal(t, "UTC", s[TriggerEnforceRemoval].Timezone)
	assert.Equal(t, "Asia/Tashkent", s[TriggerPublishToday].Timezone)
}

func TestLoadSchedule_UnknownTrigger(t *testing.T) {
	_, err := applyOverrides(DefaultSchedule("UTC"), []byte("publish-yesterday:\n  cron: \"0 6 * * *\"\n"))
	assert.ErrorContains(t, err, "publish-yesterday")
}

func TestLoadSchedule_NoFile(t *testing.T) {
	s, err := LoadSchedule("", "UTC")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule("UTC"), s)

	_, err = LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"), "UTC")
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 22, 333}, parseIDs(" 1, 22 ,x,333"))
	assert.Nil(t, parseIDs(""))
}
