package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300, cfg.AI.CacheTTLSec)
	assert.Equal(t, 60, cfg.AI.RateLimitPerMin)
	assert.Equal(t, 90, cfg.Trigger.DebounceSec)
	assert.Equal(t, 0.6, cfg.Trigger.HysteresisRatio)
	assert.True(t, cfg.License.Enforcement)
	assert.Equal(t, 600, cfg.License.CacheTTLSec)
	assert.True(t, cfg.News.RiskEnabled)
	assert.False(t, cfg.Strategy.PythonEnabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yamlBody := "ai:\n  cache_ttl_sec: 120\nlicense:\n  enforcement: false\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.AI.CacheTTLSec)
	assert.False(t, cfg.License.Enforcement)
	// Untouched fields still carry their defaults.
	assert.Equal(t, 90, cfg.Trigger.DebounceSec)
}

func TestApplyEnvOverridesLayerOnTopOfYAML(t *testing.T) {
	t.Setenv("AI_CACHE_TTL_SEC", "45")
	t.Setenv("LICENSE_ENFORCEMENT", "false")
	t.Setenv("PREDICTION_REFRESH_1H_SECONDS", "900")
	t.Setenv("BINGX_MIN_GAP_MS", "250")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.AI.CacheTTLSec)
	assert.False(t, cfg.License.Enforcement)
	assert.Equal(t, 900, cfg.Trigger.RefreshSeconds["1h"])
	assert.Equal(t, 250, cfg.Venues["bingx"].MinGapMs)
}

func TestRefreshIntervalFallsBackToFiveMinutesForUnknownTimeframe(t *testing.T) {
	tc := &TriggerConfig{RefreshSeconds: map[string]int{}}
	assert.Equal(t, 300_000_000_000, int(tc.RefreshInterval("99d")))
}

func TestCacheTTLIntervalConvertsSecondsToDuration(t *testing.T) {
	lc := &LicenseConfig{CacheTTLSec: 10}
	assert.Equal(t, 10_000_000_000, int(lc.CacheTTLInterval()))
}
