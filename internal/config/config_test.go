package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  name: engine-test
  env: test
scheduler:
  cron: "*/5 * * * *"
dispatch:
  workers: 4
  max_wait: 2s
priority:
  stage_order: [new, contacted, enrolled]
  ceilings:
    days_without_contact: 14
channels:
  smtp:
    host: smtp.example.com
    port: 587
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "engine-test", cfg.App.Name)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.MaxWait)
	assert.Equal(t, []string{"new", "contacted", "enrolled"}, cfg.Priority.StageOrder)
	assert.Equal(t, 14, cfg.Priority.Ceilings.DaysWithoutContact)
	assert.True(t, cfg.Channels.SMTP.Enabled())
	assert.False(t, cfg.Channels.WhatsApp.Enabled())
	assert.False(t, cfg.Postgres.Enabled())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval)
	assert.Equal(t, "BR", cfg.Channels.PhoneRegion)
	assert.Equal(t, "data/rules.json", cfg.Rules.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LEADENGINE_DISPATCH_WORKERS", "16")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Dispatch.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
