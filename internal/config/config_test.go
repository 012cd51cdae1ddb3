package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Simulation.Interval)
	assert.Equal(t, 1.0, cfg.Simulation.Speed)
	assert.Equal(t, 1000, cfg.Simulation.HistoryLimit)
	assert.Equal(t, "data/gridsim.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Campaign.Enabled)
	assert.Equal(t, uint64(10), cfg.Campaign.Every)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
simulation:
  interval: 250ms
  speed: 0
  scenario: scenarios/city.yaml
api:
  port: 9090
  rate_limit:
    requests: 5
    burst: 20
ticklog:
  enabled: true
  dir: /tmp/ticks
campaign:
  enabled: true
  seed: 99
  threshold: 0.6
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.Interval)
	assert.Equal(t, 0.0, cfg.Simulation.Speed, "explicit zero starts paused")
	assert.Equal(t, "scenarios/city.yaml", cfg.Simulation.Scenario)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5.0, cfg.API.RateLimit.Requests)
	assert.Equal(t, 20, cfg.API.RateLimit.Burst)
	assert.True(t, cfg.TickLog.Enabled)
	assert.Equal(t, "/tmp/ticks", cfg.TickLog.Dir)
	assert.Equal(t, int64(99), cfg.Campaign.Seed)
	assert.Equal(t, 0.6, cfg.Campaign.Threshold)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GRIDSIM_API_ADMIN_KEY", "secret")
	t.Setenv("GRIDSIM_DATABASE_PATH", "/var/lib/gridsim.db")
	t.Setenv("GRIDSIM_LOGGING_FORMAT", "json")

	cfg, err := LoadConfig(writeConfig(t, "api:\n  port: 7000\n"))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.AdminKey)
	assert.Equal(t, "/var/lib/gridsim.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 7000, cfg.API.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad level":     "logging:\n  level: loud\n",
		"bad threshold": "campaign:\n  threshold: 1.5\n",
		"bad port":      "api:\n  port: 70000\n",
		"bad path":      "metrics:\n  path: metrics\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, ValidateConfig(Default()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	log.Info("hidden")
	log.Warn("shown", "tick", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"tick":3`)

	assert.Equal(t, slog.LevelDebug, LoggingConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LoggingConfig{Level: "chatty"}.SlogLevel())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
