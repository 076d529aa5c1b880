package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.Equal(t, 20, cfg.Insight.TagBatchSize)
	assert.Equal(t, 500, cfg.Insight.PendingLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Sources.Reddit.Communities)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
database:
  dsn: postgres://file-dsn
logging:
  level: debug
sources:
  reddit:
    communities: [golang]
insight:
  model: file-model
  tagBatchSize: 10
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	t.Setenv("SIGNAL_SCANNER_CONFIG", path)
	t.Setenv("DATABASE_DSN", "postgres://env-dsn")
	t.Setenv("INSIGHT_API_KEY", "env-key")

	cfg := Load()

	assert.Equal(t, "postgres://env-dsn", cfg.Database.DSN, "environment wins over the file")
	assert.Equal(t, "env-key", cfg.Insight.APIKey)
	assert.Equal(t, "file-model", cfg.Insight.Model)
	assert.Equal(t, 10, cfg.Insight.TagBatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"golang"}, cfg.Sources.Reddit.Communities)
	assert.Equal(t, "https://www.reddit.com", cfg.Sources.Reddit.BaseURL, "untouched fields keep defaults")
}

func TestMergeConfigIgnoresZeroValues(t *testing.T) {
	base := defaultConfig()

	merged := mergeConfig(base, Config{})

	assert.Equal(t, base.Database.DSN, merged.Database.DSN)
	assert.Equal(t, base.Insight, merged.Insight)
	assert.Equal(t, base.Sources.AppStore, merged.Sources.AppStore)
}

func TestBindTimezoneFallsBack(t *testing.T) {
	cfg := defaultConfig()
	cfg.Scheduler.Timezone = "Not/AZone"
	cfg.bindTimezone()

	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}
