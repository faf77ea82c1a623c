package gengate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystlabs/gengate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gengate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := gengate.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gemini-2.5-pro", cfg.Routing.Primary)
	assert.Equal(t, "gemini-2.5-flash", cfg.Routing.Fallback)
	assert.Equal(t, gengate.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, gengate.DefaultBaseDelay, cfg.Retry.BaseDelay)
	assert.Equal(t, gengate.DefaultMaxDelay, cfg.Retry.MaxDelay)
	assert.Equal(t, gengate.DefaultGracePeriod, cfg.GracePeriod)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - name: gemini-2.5-pro
    requests_per_minute: 5
    tokens_per_minute: 250000
    requests_per_day: 100
  - name: gemini-2.5-flash
    requests_per_minute: 10
    tokens_per_minute: 250000
    requests_per_day: 250
routing:
  primary: gemini-2.5-pro
  fallback: gemini-2.5-flash
retry:
  max_attempts: 3
  base_delay: 500ms
  max_delay: 30s
  jitter: 0.2
grace_period: 2m
`)

	cfg, err := gengate.LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, int64(5), cfg.Endpoints[0].RequestsPerMinute)
	assert.Equal(t, int64(250_000), cfg.Endpoints[0].TokensPerMinute)
	assert.Equal(t, "gemini-2.5-flash", cfg.Routing.Fallback)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 0.2, cfg.Retry.Jitter)
	assert.Equal(t, 2*time.Minute, cfg.GracePeriod)
}

func TestLoadConfig_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("GENGATE_PRIMARY", "gemini-2.5-pro")

	path := writeConfig(t, `
endpoints:
  - name: ${GENGATE_PRIMARY}
    requests_per_minute: 5
`)

	cfg, err := gengate.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.Endpoints[0].Name)
	// Primary falls back to the first endpoint; retry fields to defaults.
	assert.Equal(t, "gemini-2.5-pro", cfg.Routing.Primary)
	assert.Equal(t, gengate.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, gengate.DefaultBaseDelay, cfg.Retry.BaseDelay)
	assert.Equal(t, gengate.DefaultGracePeriod, cfg.GracePeriod)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := gengate.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfigValidate_Errors(t *testing.T) {
	base := func() gengate.Config {
		cfg := gengate.DefaultConfig()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*gengate.Config)
	}{
		{"no endpoints", func(c *gengate.Config) { c.Endpoints = nil }},
		{"unnamed endpoint", func(c *gengate.Config) { c.Endpoints[0].Name = "" }},
		{"duplicate endpoint", func(c *gengate.Config) { c.Endpoints[1].Name = c.Endpoints[0].Name }},
		{"negative limit", func(c *gengate.Config) { c.Endpoints[0].TokensPerMinute = -1 }},
		{"unknown primary", func(c *gengate.Config) { c.Routing.Primary = "missing" }},
		{"unknown fallback", func(c *gengate.Config) { c.Routing.Fallback = "missing" }},
		{"zero attempts", func(c *gengate.Config) { c.Retry.MaxAttempts = 0 }},
		{"max below base", func(c *gengate.Config) { c.Retry.MaxDelay = c.Retry.BaseDelay - 1 }},
		{"jitter out of range", func(c *gengate.Config) { c.Retry.Jitter = 1.0 }},
		{"non-positive grace", func(c *gengate.Config) { c.GracePeriod = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
